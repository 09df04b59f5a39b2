// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package mediain

import (
	"sort"
	"strings"
	"time"
)

// Caption is one platform caption as reported by the meeting client. The
// same ID is reported repeatedly while the speaker talks.
type Caption struct {
	ID              string
	ParticipantUUID string
	Text            string
	TimestampMs     int64
	DurationMs      int64
}

// CaptionUtterance is what the caption managers emit; SourceID keys the
// upsert.
type CaptionUtterance struct {
	SourceID        string
	ParticipantUUID string
	Text            string
	TimestampMs     int64
	DurationMs      int64
}

// CaptionSink stores caption utterances.
type CaptionSink func(CaptionUtterance)

// CaptionManager is implemented by the plain and grouped caption managers.
type CaptionManager interface {
	UpsertCaption(c Caption)
	ProcessCaptions()
	FlushCaptions()
}

// DefaultCaptionSettle is how long a caption must be unchanged before it
// is written on a periodic pass.
const DefaultCaptionSettle = time.Second

type trackedCaption struct {
	caption   Caption
	updatedAt time.Time
	dirty     bool
}

// Captions writes one utterance per caption id.
type Captions struct {
	sink     CaptionSink
	now      func() time.Time
	settle   time.Duration
	captions map[string]*trackedCaption
}

// NewCaptions creates a caption manager.
func NewCaptions(sink CaptionSink, now func() time.Time) *Captions {
	if now == nil {
		now = time.Now
	}
	return &Captions{sink: sink, now: now, settle: DefaultCaptionSettle, captions: make(map[string]*trackedCaption)}
}

// UpsertCaption records the latest text of a caption.
func (m *Captions) UpsertCaption(c Caption) {
	tc, ok := m.captions[c.ID]
	if !ok {
		tc = &trackedCaption{}
		m.captions[c.ID] = tc
	}
	if ok && tc.caption == c {
		return
	}
	tc.caption = c
	tc.updatedAt = m.now()
	tc.dirty = true
}

// ProcessCaptions writes settled captions.
func (m *Captions) ProcessCaptions() {
	now := m.now()
	for _, id := range m.dirtyIDs() {
		tc := m.captions[id]
		if now.Sub(tc.updatedAt) >= m.settle {
			m.write(tc)
		}
	}
}

// FlushCaptions writes every pending caption.
func (m *Captions) FlushCaptions() {
	for _, id := range m.dirtyIDs() {
		m.write(m.captions[id])
	}
}

func (m *Captions) dirtyIDs() []string {
	var ids []string
	for id, tc := range m.captions {
		if tc.dirty {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool {
		a, b := m.captions[ids[i]].caption, m.captions[ids[j]].caption
		if a.TimestampMs != b.TimestampMs {
			return a.TimestampMs < b.TimestampMs
		}
		return ids[i] < ids[j]
	})
	return ids
}

func (m *Captions) write(tc *trackedCaption) {
	tc.dirty = false
	c := tc.caption
	m.sink(CaptionUtterance{
		SourceID:        c.ID,
		ParticipantUUID: c.ParticipantUUID,
		Text:            c.Text,
		TimestampMs:     c.TimestampMs,
		DurationMs:      c.DurationMs,
	})
}

// DefaultGroupGap is the largest pause between two captions of the same
// speaker that still merges them.
const DefaultGroupGap = 3 * time.Second

type captionGroup struct {
	id              string
	participantUUID string
	order           []string
	parts           map[string]Caption
	updatedAt       time.Time
	dirty           bool
}

func (g *captionGroup) utterance() CaptionUtterance {
	texts := make([]string, 0, len(g.order))
	first := g.parts[g.order[0]]
	end := first.TimestampMs + first.DurationMs
	for _, id := range g.order {
		c := g.parts[id]
		if t := strings.TrimSpace(c.Text); t != "" {
			texts = append(texts, t)
		}
		if e := c.TimestampMs + c.DurationMs; e > end {
			end = e
		}
	}
	return CaptionUtterance{
		SourceID:        g.id,
		ParticipantUUID: g.participantUUID,
		Text:            strings.Join(texts, " "),
		TimestampMs:     first.TimestampMs,
		DurationMs:      end - first.TimestampMs,
	}
}

func (g *captionGroup) endMs() int64 {
	u := g.utterance()
	return u.TimestampMs + u.DurationMs
}

// GroupedCaptions merges consecutive captions of one speaker into a single
// utterance keyed by the first caption's id.
type GroupedCaptions struct {
	sink    CaptionSink
	now     func() time.Time
	gap     time.Duration
	settle  time.Duration
	current *captionGroup
	byID    map[string]*captionGroup
	open    []*captionGroup
}

// NewGroupedCaptions creates a grouping caption manager.
func NewGroupedCaptions(sink CaptionSink, gap time.Duration, now func() time.Time) *GroupedCaptions {
	if now == nil {
		now = time.Now
	}
	if gap <= 0 {
		gap = DefaultGroupGap
	}
	return &GroupedCaptions{sink: sink, now: now, gap: gap, settle: DefaultCaptionSettle, byID: make(map[string]*captionGroup)}
}

// UpsertCaption adds or updates a caption, joining it to the current group
// when the speaker is unchanged and the pause is short.
func (m *GroupedCaptions) UpsertCaption(c Caption) {
	if g, ok := m.byID[c.ID]; ok {
		if g.parts[c.ID] != c {
			g.parts[c.ID] = c
			g.updatedAt = m.now()
			g.dirty = true
		}
		return
	}
	g := m.current
	if g == nil || g.participantUUID != c.ParticipantUUID || c.TimestampMs-g.endMs() > m.gap.Milliseconds() {
		g = &captionGroup{id: c.ID, participantUUID: c.ParticipantUUID, parts: make(map[string]Caption)}
		m.current = g
		m.open = append(m.open, g)
	}
	g.order = append(g.order, c.ID)
	g.parts[c.ID] = c
	g.updatedAt = m.now()
	g.dirty = true
	m.byID[c.ID] = g
}

// ProcessCaptions writes groups that have settled.
func (m *GroupedCaptions) ProcessCaptions() {
	now := m.now()
	for _, g := range m.open {
		if g.dirty && now.Sub(g.updatedAt) >= m.settle {
			g.dirty = false
			m.sink(g.utterance())
		}
	}
	m.compact()
}

// FlushCaptions writes every dirty group.
func (m *GroupedCaptions) FlushCaptions() {
	for _, g := range m.open {
		if g.dirty {
			g.dirty = false
			m.sink(g.utterance())
		}
	}
	m.compact()
}

// compact forgets written groups other than the current one.
func (m *GroupedCaptions) compact() {
	kept := m.open[:0]
	for _, g := range m.open {
		if g.dirty || g == m.current {
			kept = append(kept, g)
			continue
		}
		for _, id := range g.order {
			delete(m.byID, id)
		}
	}
	m.open = kept
}
