package model

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"knot-backend/internal/matching"
)

func TestConversationID_IsOrderIndependent(t *testing.T) {
	assert.Equal(t, ConversationID("b", "a"), ConversationID("a", "b"))
	assert.Equal(t, "conv_a_b", ConversationID("b", "a"))
}

func TestConversation_Other(t *testing.T) {
	c := Conversation{Participants: []string{"u1", "u2"}}
	assert.Equal(t, "u2", c.Other("u1"))
	assert.True(t, c.HasParticipant("u2"))
	assert.False(t, c.HasParticipant("u3"))
}

func TestUser_RefreshProfileComplete(t *testing.T) {
	u := &User{Name: "Asha", Age: 27, Location: "Pune", Education: "MBA", Profession: "Analyst"}
	u.RefreshProfileComplete()
	assert.False(t, u.ProfileComplete)

	u.Bio = "Loves hiking"
	u.RefreshProfileComplete()
	assert.True(t, u.ProfileComplete)
}

func TestUser_MatchingProfileCarriesID(t *testing.T) {
	u := &User{ID: "u1"}
	assert.Nil(t, u.MatchingProfile())

	u.Compatibility = &matching.Profile{Age: 30}
	p := u.MatchingProfile()
	assert.Equal(t, "u1", p.ID)
	assert.Equal(t, "", u.Compatibility.ID)
}
