package types

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"
)

const testSecret = "0x4AAAAAAA-turnstile-secret"

func TestSecretStringRedacts(t *testing.T) {
	s := SecretString(testSecret)

	for name, out := range map[string]string{
		"String":  s.String(),
		"Sprintf": fmt.Sprintf("%s %v %+v", s, s, s),
	} {
		if strings.Contains(out, testSecret) {
			t.Errorf("%s leaked the secret: %q", name, out)
		}
	}

	b, err := json.Marshal(struct {
		Secret SecretString `json:"secret"`
	}{s})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if strings.Contains(string(b), testSecret) {
		t.Errorf("json leaked the secret: %s", b)
	}
}

func TestSecretStringUnmask(t *testing.T) {
	if got := SecretString(testSecret).Unmask(); got != testSecret {
		t.Errorf("Unmask() = %q", got)
	}
	if !SecretString("").IsZero() {
		t.Error("empty secret should be zero")
	}
}
