// Package dialog is the conversational core: the finite-state machine, its
// per-state handlers, and the booking sub-machine. For every inbound turn it
// produces exactly one outgoing message and the next state.
package dialog

import (
	"bookline/agent/internal/sessions"
)

// adjacency declares the states a handler may return from each state.
// Cross-cutting transitions (expiry reset, strong override, anti-loop)
// happen before dispatch and are not handler edges.
var adjacency = map[sessions.State][]sessions.State{
	sessions.StateStart: {
		sessions.StateStart, sessions.StateClarify, sessions.StateQualifName,
		sessions.StatePostFAQ, sessions.StateIntentRouter,
		sessions.StateCancelName, sessions.StateModifyName,
		sessions.StateConfirmed, sessions.StateTransferred,
	},
	sessions.StateClarify: {
		sessions.StateClarify, sessions.StateQualifName, sessions.StateFAQAnswer,
		sessions.StatePostFAQ, sessions.StateIntentRouter,
		sessions.StateCancelName, sessions.StateModifyName,
		sessions.StateConfirmed, sessions.StateTransferred,
	},
	sessions.StateFAQAnswer: {
		sessions.StateFAQAnswer, sessions.StatePostFAQ, sessions.StateQualifName,
		sessions.StateIntentRouter, sessions.StateConfirmed, sessions.StateTransferred,
	},
	sessions.StatePostFAQ: {
		sessions.StatePostFAQ, sessions.StatePostFAQChoice, sessions.StateQualifName,
		sessions.StateIntentRouter, sessions.StateConfirmed, sessions.StateTransferred,
	},
	sessions.StatePostFAQChoice: {
		sessions.StatePostFAQChoice, sessions.StatePostFAQ, sessions.StateFAQAnswer,
		sessions.StateQualifName, sessions.StateIntentRouter,
		sessions.StateConfirmed, sessions.StateTransferred,
	},
	sessions.StateQualifName: {
		sessions.StateQualifName, sessions.StateQualifMotive,
		sessions.StateIntentRouter, sessions.StateConfirmed, sessions.StateTransferred,
	},
	sessions.StateQualifMotive: {
		sessions.StateQualifMotive, sessions.StateQualifPref,
		sessions.StateIntentRouter, sessions.StateConfirmed, sessions.StateTransferred,
	},
	sessions.StateQualifPref: {
		sessions.StateQualifPref, sessions.StatePrefConfirm, sessions.StateQualifContact,
		sessions.StateWaitConfirm, sessions.StateIntentRouter,
		sessions.StateConfirmed, sessions.StateTransferred,
	},
	sessions.StatePrefConfirm: {
		sessions.StatePrefConfirm, sessions.StateQualifPref, sessions.StateQualifContact,
		sessions.StateWaitConfirm, sessions.StateIntentRouter,
		sessions.StateConfirmed, sessions.StateTransferred,
	},
	sessions.StateQualifContact: {
		sessions.StateQualifContact, sessions.StateContactConfirm,
		sessions.StateIntentRouter, sessions.StateConfirmed, sessions.StateTransferred,
	},
	sessions.StateContactConfirm: {
		sessions.StateContactConfirm, sessions.StateQualifContact,
		sessions.StateWaitConfirm, sessions.StateIntentRouter,
		sessions.StateConfirmed, sessions.StateTransferred,
	},
	sessions.StateWaitConfirm: {
		sessions.StateWaitConfirm, sessions.StateQualifPref,
		sessions.StateIntentRouter, sessions.StateConfirmed, sessions.StateTransferred,
	},
	sessions.StateIntentRouter: {
		sessions.StateIntentRouter, sessions.StateQualifName, sessions.StateCancelName,
		sessions.StateModifyName, sessions.StateFAQAnswer,
		sessions.StateConfirmed, sessions.StateTransferred,
	},
	sessions.StateCancelName: {
		sessions.StateCancelName, sessions.StateCancelNotFound, sessions.StateCancelConfirm,
		sessions.StateIntentRouter, sessions.StateConfirmed, sessions.StateTransferred,
	},
	sessions.StateCancelNotFound: {
		sessions.StateCancelNotFound, sessions.StateCancelConfirm,
		sessions.StateIntentRouter, sessions.StateConfirmed, sessions.StateTransferred,
	},
	sessions.StateCancelConfirm: {
		sessions.StateCancelConfirm, sessions.StateIntentRouter,
		sessions.StateConfirmed, sessions.StateTransferred,
	},
	sessions.StateModifyName: {
		sessions.StateModifyName, sessions.StateModifyNotFound, sessions.StateQualifPref,
		sessions.StateIntentRouter, sessions.StateConfirmed, sessions.StateTransferred,
	},
	sessions.StateModifyNotFound: {
		sessions.StateModifyNotFound, sessions.StateQualifPref,
		sessions.StateIntentRouter, sessions.StateConfirmed, sessions.StateTransferred,
	},
}

// canTransition checks the adjacency table. Handlers only ever return
// declared edges; a miss is a programming error caught in tests.
func canTransition(from, to sessions.State) bool {
	for _, s := range adjacency[from] {
		if s == to {
			return true
		}
	}
	return false
}
