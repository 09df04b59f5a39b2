// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package autoleave

import (
	"time"

	"github.com/ManuGH/meetbot/internal/bot"
)

// Presence tracks who is in the meeting and when the bot became the only
// qualifying participant.
type Presence struct {
	keywords    []string
	displayName string

	participants map[string]bot.Participant
	order        []string
	onlySince    time.Time
}

// NewPresence creates a tracker for a bot with the given display name.
func NewPresence(displayName string, keywords []string) *Presence {
	return &Presence{
		keywords:     keywords,
		displayName:  displayName,
		participants: make(map[string]bot.Participant),
	}
}

// Upsert records a participant. Existing entries keep their position.
func (p *Presence) Upsert(part bot.Participant) {
	if _, ok := p.participants[part.UUID]; !ok {
		p.order = append(p.order, part.UUID)
	}
	p.participants[part.UUID] = part
}

// SetActive flips the liveness of a known participant.
func (p *Presence) SetActive(uuid string, active bool) bool {
	part, ok := p.participants[uuid]
	if !ok {
		return false
	}
	part.Active = active
	p.participants[uuid] = part
	return true
}

// Get returns a known participant.
func (p *Presence) Get(uuid string) (bot.Participant, bool) {
	part, ok := p.participants[uuid]
	return part, ok
}

// All returns participants in first-seen order.
func (p *Presence) All() []bot.Participant {
	out := make([]bot.Participant, 0, len(p.order))
	for _, id := range p.order {
		out = append(out, p.participants[id])
	}
	return out
}

// CountWithName returns how many known participants, present or not,
// carry name.
func (p *Presence) CountWithName(name string) int {
	n := 0
	for _, part := range p.participants {
		if part.FullName == name {
			n++
		}
	}
	return n
}

func (p *Presence) isSelf(part bot.Participant) bool {
	return part.IsTheBot || (p.displayName != "" && part.FullName == p.displayName)
}

func (p *Presence) isOtherBot(part bot.Participant) bool {
	return IsAnotherBot(part.FullName, p.isSelf(part), p.keywords)
}

// EverSeenExcludingOtherBots counts every participant ever seen, our bot
// included, that is not another bot.
func (p *Presence) EverSeenExcludingOtherBots() int {
	n := 0
	for _, part := range p.participants {
		if !p.isOtherBot(part) {
			n++
		}
	}
	return n
}

// Recompute updates the only-participant timer. The timer only arms once the
// bot has joined and someone besides the bot (ignoring other bots) was seen.
func (p *Presence) Recompute(now time.Time, joined bool) {
	if !joined {
		return
	}
	if p.EverSeenExcludingOtherBots() <= 1 {
		return
	}
	var remaining []bot.Participant
	for _, part := range p.participants {
		if part.Active && !p.isOtherBot(part) {
			remaining = append(remaining, part)
		}
	}
	if len(remaining) == 1 && p.isSelf(remaining[0]) {
		if p.onlySince.IsZero() {
			p.onlySince = now
		}
		return
	}
	p.onlySince = time.Time{}
}

// OnlyParticipantSince is when the bot became alone, or zero.
func (p *Presence) OnlyParticipantSince() time.Time { return p.onlySince }
