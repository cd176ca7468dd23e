package webhook

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"formguard/internal/types"
)

// Platform identifies the payload shape a webhook URL expects.
type Platform string

const (
	PlatformGeneric Platform = "generic"
	PlatformSlack   Platform = "slack"
	PlatformDiscord Platform = "discord"
)

// EventSubmissionCreated is the only event forwarded today.
const EventSubmissionCreated = "submission.created"

// Chat platforms cap the number of fields per message.
const maxChatFields = 10

// Detect picks a platform from well-known incoming-webhook hosts.
func Detect(rawURL string) Platform {
	lower := strings.ToLower(rawURL)
	switch {
	case strings.Contains(lower, "hooks.slack.com"):
		return PlatformSlack
	case strings.Contains(lower, "discord.com/api/webhooks"), strings.Contains(lower, "discordapp.com/api/webhooks"):
		return PlatformDiscord
	default:
		return PlatformGeneric
	}
}

// Envelope is the generic payload. Its shape is a public contract.
type Envelope struct {
	Event      string            `json:"event"`
	Form       EnvelopeForm      `json:"form"`
	Submission *types.Submission `json:"submission"`
}

// EnvelopeForm identifies the form that received the submission.
type EnvelopeForm struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	EndpointID string `json:"endpoint_id"`
}

type slackText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type slackBlock struct {
	Type   string      `json:"type"`
	Text   *slackText  `json:"text,omitempty"`
	Fields []slackText `json:"fields,omitempty"`
}

type slackPayload struct {
	Text   string       `json:"text"`
	Blocks []slackBlock `json:"blocks"`
}

type discordField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type discordEmbed struct {
	Title     string         `json:"title"`
	Fields    []discordField `json:"fields,omitempty"`
	Timestamp string         `json:"timestamp"`
}

type discordPayload struct {
	Content string         `json:"content"`
	Embeds  []discordEmbed `json:"embeds"`
}

// Format renders the payload for platform.
func Format(platform Platform, form *types.Form, sub *types.Submission) ([]byte, error) {
	if form == nil || sub == nil {
		return nil, fmt.Errorf("webhook: form and submission are required")
	}

	title := fmt.Sprintf("New submission on %s", form.Name)

	switch platform {
	case PlatformSlack:
		p := slackPayload{
			Text:   title,
			Blocks: []slackBlock{{Type: "header", Text: &slackText{Type: "plain_text", Text: title}}},
		}
		var fields []slackText
		for _, kv := range fieldPairs(sub.Data) {
			fields = append(fields, slackText{Type: "mrkdwn", Text: fmt.Sprintf("*%s*\n%s", kv[0], kv[1])})
		}
		if len(fields) > 0 {
			p.Blocks = append(p.Blocks, slackBlock{Type: "section", Fields: fields})
		}
		return json.Marshal(p)

	case PlatformDiscord:
		embed := discordEmbed{Title: title, Timestamp: sub.CreatedAt.UTC().Format(time.RFC3339)}
		for _, kv := range fieldPairs(sub.Data) {
			embed.Fields = append(embed.Fields, discordField{Name: kv[0], Value: kv[1], Inline: len(kv[1]) < 40})
		}
		return json.Marshal(discordPayload{Content: title, Embeds: []discordEmbed{embed}})

	default:
		return json.Marshal(Envelope{
			Event:      EventSubmissionCreated,
			Form:       EnvelopeForm{ID: form.ID, Name: form.Name, EndpointID: form.EndpointID},
			Submission: sub,
		})
	}
}

// fieldPairs returns up to maxChatFields sorted key/value pairs as text.
func fieldPairs(data types.SubmissionData) [][2]string {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if len(keys) > maxChatFields {
		keys = keys[:maxChatFields]
	}

	out := make([][2]string, 0, len(keys))
	for _, k := range keys {
		var v string
		switch val := data[k].(type) {
		case string:
			v = val
		case nil:
			v = ""
		default:
			b, _ := json.Marshal(val)
			v = string(b)
		}
		if v == "" {
			v = "-"
		}
		out = append(out, [2]string{k, v})
	}
	return out
}
