package chat

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompleteOnly(t *testing.T) {
	p := CompleteOnly{}
	assert.Equal(t, []Turn{{RoleUser, "q"}, {RoleAssistant, "ABC"}}, p.Turns(OutcomeComplete, "q", "ABC"))
	assert.Nil(t, p.Turns(OutcomeCancelled, "q", "AB"))
	assert.Nil(t, p.Turns(OutcomeFailed, "q", "A"))
}

func TestSavePartial(t *testing.T) {
	p := SavePartial{}
	assert.Equal(t, []Turn{{RoleUser, "q"}, {RoleAssistant, "ABC"}}, p.Turns(OutcomeComplete, "q", "ABC"))
	assert.Equal(t, []Turn{{RoleUser, "q"}, {RoleAssistant, "AB"}}, p.Turns(OutcomeCancelled, "q", "AB"))
	assert.Equal(t, []Turn{{RoleUser, "q"}}, p.Turns(OutcomeCancelled, "q", ""))
	assert.Nil(t, p.Turns(OutcomeFailed, "q", "A"))
}

func TestPolicyFor(t *testing.T) {
	assert.IsType(t, CompleteOnly{}, PolicyFor(false))
	assert.IsType(t, SavePartial{}, PolicyFor(true))
}
