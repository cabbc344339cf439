// Package activity is the status payload published over IPC. Secret fields
// are carried opaquely and never interpreted.
package activity

import (
	"fmt"
	"net/url"
	"time"
	"unicode/utf8"

	"github.com/danmuck/presencectl/internal/protocol"
)

const (
	MinTextLen   = 2
	MaxTextLen   = 128
	MaxButtons   = 2
	MaxLabelLen  = 32
	MaxButtonURL = 512
)

type Activity struct {
	State      string      `json:"state,omitempty" toml:"state"`
	Details    string      `json:"details,omitempty" toml:"details"`
	Timestamps *Timestamps `json:"timestamps,omitempty" toml:"-"`
	Assets     *Assets     `json:"assets,omitempty" toml:"-"`
	Party      *Party      `json:"party,omitempty" toml:"-"`
	Secrets    *Secrets    `json:"secrets,omitempty" toml:"-"`
	Buttons    []Button    `json:"buttons,omitempty" toml:"buttons"`
	Instance   *bool       `json:"instance,omitempty" toml:"-"`
}

// Timestamps are unix seconds.
type Timestamps struct {
	Start int64 `json:"start,omitempty"`
	End   int64 `json:"end,omitempty"`
}

type Assets struct {
	LargeImage string `json:"large_image,omitempty"`
	LargeText  string `json:"large_text,omitempty"`
	SmallImage string `json:"small_image,omitempty"`
	SmallText  string `json:"small_text,omitempty"`
}

// Party size is [current, max].
type Party struct {
	ID   string    `json:"id,omitempty"`
	Size *[2]int32 `json:"size,omitempty"`
}

type Secrets struct {
	Join     string `json:"join,omitempty"`
	Spectate string `json:"spectate,omitempty"`
	Match    string `json:"match,omitempty"`
}

type Button struct {
	Label string `json:"label" toml:"label"`
	URL   string `json:"url" toml:"url"`
}

// Validate checks the field limits the desktop client enforces, so a bad
// payload fails locally with InvalidActivity instead of a remote 4002.
func (a *Activity) Validate() error {
	if a == nil {
		return nil
	}
	if err := checkText("state", a.State); err != nil {
		return err
	}
	if err := checkText("details", a.Details); err != nil {
		return err
	}
	if a.Assets != nil {
		if err := checkText("assets.large_text", a.Assets.LargeText); err != nil {
			return err
		}
		if err := checkText("assets.small_text", a.Assets.SmallText); err != nil {
			return err
		}
	}
	if ts := a.Timestamps; ts != nil && ts.Start > 0 && ts.End > 0 && ts.End < ts.Start {
		return protocol.InvalidActivity("timestamps.end precedes timestamps.start")
	}
	if p := a.Party; p != nil && p.Size != nil {
		if p.Size[0] < 1 || p.Size[1] < 1 || p.Size[0] > p.Size[1] {
			return protocol.InvalidActivity(fmt.Sprintf("party.size %v must satisfy 1 <= current <= max", *p.Size))
		}
	}
	if len(a.Buttons) > MaxButtons {
		return protocol.InvalidActivity(fmt.Sprintf("at most %d buttons, got %d", MaxButtons, len(a.Buttons)))
	}
	for i, b := range a.Buttons {
		if n := utf8.RuneCountInString(b.Label); n < 1 || n > MaxLabelLen {
			return protocol.InvalidActivity(fmt.Sprintf("buttons[%d].label length %d outside 1..%d", i, n, MaxLabelLen))
		}
		if n := len(b.URL); n < 1 || n > MaxButtonURL {
			return protocol.InvalidActivity(fmt.Sprintf("buttons[%d].url length %d outside 1..%d", i, n, MaxButtonURL))
		}
		u, err := url.Parse(b.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return protocol.InvalidActivity(fmt.Sprintf("buttons[%d].url %q is not an http(s) url", i, b.URL))
		}
	}
	return nil
}

func checkText(field, v string) error {
	if v == "" {
		return nil
	}
	if n := utf8.RuneCountInString(v); n < MinTextLen || n > MaxTextLen {
		return protocol.InvalidActivity(fmt.Sprintf("%s length %d outside %d..%d", field, n, MinTextLen, MaxTextLen))
	}
	return nil
}

// Builder assembles an Activity field by field.
type Builder struct {
	a Activity
}

func NewBuilder() *Builder {
	return &Builder{}
}

func (b *Builder) State(s string) *Builder {
	b.a.State = s
	return b
}

func (b *Builder) Details(s string) *Builder {
	b.a.Details = s
	return b
}

func (b *Builder) StartNow() *Builder {
	return b.Start(time.Now())
}

func (b *Builder) Start(t time.Time) *Builder {
	b.timestamps().Start = t.Unix()
	return b
}

func (b *Builder) End(t time.Time) *Builder {
	b.timestamps().End = t.Unix()
	return b
}

func (b *Builder) LargeImage(key, text string) *Builder {
	as := b.assets()
	as.LargeImage, as.LargeText = key, text
	return b
}

func (b *Builder) SmallImage(key, text string) *Builder {
	as := b.assets()
	as.SmallImage, as.SmallText = key, text
	return b
}

func (b *Builder) Party(id string, current, max int32) *Builder {
	b.a.Party = &Party{ID: id, Size: &[2]int32{current, max}}
	return b
}

func (b *Builder) Button(label, rawURL string) *Builder {
	b.a.Buttons = append(b.a.Buttons, Button{Label: label, URL: rawURL})
	return b
}

func (b *Builder) JoinSecret(s string) *Builder {
	b.secrets().Join = s
	return b
}

func (b *Builder) SpectateSecret(s string) *Builder {
	b.secrets().Spectate = s
	return b
}

func (b *Builder) MatchSecret(s string) *Builder {
	b.secrets().Match = s
	return b
}

func (b *Builder) Instance(v bool) *Builder {
	b.a.Instance = &v
	return b
}

// Build validates and returns a copy of the assembled activity.
func (b *Builder) Build() (*Activity, error) {
	out := b.a
	out.Buttons = append([]Button(nil), b.a.Buttons...)
	if err := out.Validate(); err != nil {
		return nil, err
	}
	return &out, nil
}

func (b *Builder) timestamps() *Timestamps {
	if b.a.Timestamps == nil {
		b.a.Timestamps = &Timestamps{}
	}
	return b.a.Timestamps
}

func (b *Builder) assets() *Assets {
	if b.a.Assets == nil {
		b.a.Assets = &Assets{}
	}
	return b.a.Assets
}

func (b *Builder) secrets() *Secrets {
	if b.a.Secrets == nil {
		b.a.Secrets = &Secrets{}
	}
	return b.a.Secrets
}
