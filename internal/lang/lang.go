// Package lang renders message keys into user-facing chat text. The command
// handlers speak in keys plus parameters; the table here is the default
// English rendering and can be replaced wholesale for localization.
package lang

import "fmt"

var defaults = map[string]string{
	"songrequest.request.accepted":     "Your request for %s was counted (%d votes).",
	"songrequest.request.already":      "You already voted for that song.",
	"songrequest.request.notopen":      "Song requests are not open right now.",
	"songrequest.reject.length":        "That song name is too long: %s",
	"songrequest.reject.empty":         "Tell me a song name: !request <song>",
	"songrequest.defaultaction.open":   "Song requests are OPEN.%s",
	"songrequest.defaultaction.closed": "Song requests are closed.",
	"songrequest.action.open":          "Song requests are now open!",
	"songrequest.action.openagain":     "Song requests are already open.",
	"songrequest.action.close":         "Song requests are now closed.",
	"songrequest.action.closeagain":    "Song requests are already closed.",
	"songrequest.action.reset":         "Song requests have been reset.",
	"songrequest.action.top":           "Top requests: %s",
	"songrequest.action.new":           "Newest requests: %s",
	"songrequest.action.played":        "Marked %s as played (%d voters).",
	"songrequest.action.deleted":       "Removed %s from the request list.",
	"songrequest.action.refreshed":     "Overlay refreshed.",
	"songrequest.notfound":             "No open request named %s.",
	"songrequest.norequests":           "There are no requests yet.",
	"songrequest.usage":                "Usage: !songrequests [top | new | open | close | reset | refresh | played <song> | delete <song>]",
	"songrequest.nopermission":         "You do not have permission for that.",
}

// Registry maps message keys to fmt templates.
type Registry struct {
	messages map[string]string
}

// NewRegistry returns a registry seeded with the default English table.
func NewRegistry() *Registry {
	messages := make(map[string]string, len(defaults))
	for k, v := range defaults {
		messages[k] = v
	}
	return &Registry{messages: messages}
}

// Set overrides or adds a message template.
func (r *Registry) Set(key, template string) {
	r.messages[key] = template
}

// Get renders a key with its parameters. An unknown key renders as the key
// itself so a missing translation degrades visibly instead of panicking.
func (r *Registry) Get(key string, args ...any) string {
	template, ok := r.messages[key]
	if !ok {
		return key
	}
	if len(args) == 0 {
		return template
	}
	return fmt.Sprintf(template, args...)
}
