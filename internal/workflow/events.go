package workflow

import (
	"strings"
)

// EventKind tells what an inbound message carries.
type EventKind string

const (
	EventText     EventKind = "text"
	EventContact  EventKind = "contact"
	EventLocation EventKind = "location"
	EventMedia    EventKind = "media"
)

// Event is one inbound message from an agent.
type Event struct {
	Identity string    `json:"identity"`
	Kind     EventKind `json:"kind"`
	Text     string    `json:"text,omitempty"`
	Contact  *Contact  `json:"contact,omitempty"`
	Location *Location `json:"location,omitempty"`
	Media    *Media    `json:"media,omitempty"`
}

// Contact is a shared phone number offered as identity proof.
type Contact struct {
	Phone string `json:"phone"`
}

// Location is a shared geolocation.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Media is an attachment reference. Extension includes the leading dot.
type Media struct {
	URL         string `json:"url"`
	ContentType string `json:"content_type"`
	Extension   string `json:"extension"`
}

func TextEvent(identity, text string) Event {
	return Event{Identity: identity, Kind: EventText, Text: text}
}

func ContactEvent(identity, phone string) Event {
	return Event{Identity: identity, Kind: EventContact, Contact: &Contact{Phone: phone}}
}

func LocationEvent(identity string, lat, lon float64) Event {
	return Event{Identity: identity, Kind: EventLocation, Location: &Location{Latitude: lat, Longitude: lon}}
}

func MediaEvent(identity, url, contentType, ext string) Event {
	return Event{Identity: identity, Kind: EventMedia, Media: &Media{URL: url, ContentType: contentType, Extension: ext}}
}

// Valid reports whether the payload matching Kind is present.
func (e Event) Valid() bool {
	if e.Identity == "" {
		return false
	}
	switch e.Kind {
	case EventText:
		return true
	case EventContact:
		return e.Contact != nil
	case EventLocation:
		return e.Location != nil
	case EventMedia:
		return e.Media != nil && e.Media.URL != ""
	}
	return false
}

type command int

const (
	cmdNone command = iota
	cmdStart
	cmdHelp
	cmdProfile
	cmdUpload
	cmdBack
	cmdCancel
)

var commandWords = map[string]command{
	"/start":           cmdStart,
	"/help":            cmdHelp,
	"help":             cmdHelp,
	"помощь":           cmdHelp,
	"❓ помощь":         cmdHelp,
	"/profile":         cmdProfile,
	"профиль":          cmdProfile,
	"мой профиль":      cmdProfile,
	"👤 мой профиль":    cmdProfile,
	"/upload":          cmdUpload,
	"загрузить фото":   cmdUpload,
	"📷 загрузить фото": cmdUpload,
	"back":             cmdBack,
	"назад":            cmdBack,
	"🔙 назад":          cmdBack,
	"/cancel":          cmdCancel,
	"cancel":           cmdCancel,
	"отмена":           cmdCancel,
	"❌ отмена":         cmdCancel,
}

func parseCommand(e Event) command {
	if e.Kind != EventText {
		return cmdNone
	}
	return commandWords[strings.ToLower(strings.TrimSpace(e.Text))]
}
