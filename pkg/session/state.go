package session

import (
	"github.com/platinummonkey/labkit/pkg/auth"
	"github.com/platinummonkey/labkit/pkg/labs"
)

// State is the application-level session state
type State string

const (
	StateLoading            State = "loading"
	StateUnauthenticated    State = "unauthenticated"
	StateOnboardingRequired State = "onboarding_required"
	StateAuthenticated      State = "authenticated"
)

// Classify derives the state from the resolution status. A signed-in user
// without a laboratory, or with a laboratory that has no name yet, must
// finish onboarding.
func Classify(loading bool, identity *auth.Identity, laboratory *labs.Laboratory) State {
	switch {
	case loading:
		return StateLoading
	case identity == nil:
		return StateUnauthenticated
	case !laboratory.IsComplete():
		return StateOnboardingRequired
	default:
		return StateAuthenticated
	}
}

// Action is what the shell does with a requested path
type Action string

const (
	ActionRender   Action = "render"
	ActionRedirect Action = "redirect"
	ActionWait     Action = "wait"
)

// RouteDecision is the outcome of routing one path in one state. Target is
// set for redirects. Shell is set when the page renders inside the full
// application shell.
type RouteDecision struct {
	Action Action `json:"action"`
	Target string `json:"target,omitempty"`
	Shell  bool   `json:"shell"`
}

func render(shell bool) RouteDecision {
	return RouteDecision{Action: ActionRender, Shell: shell}
}

func redirect(target string) RouteDecision {
	return RouteDecision{Action: ActionRedirect, Target: target}
}

// Decide routes p for state
func (t RouteTable) Decide(state State, p string) RouteDecision {
	category := t.Categorize(p)

	switch state {
	case StateUnauthenticated:
		if category == RouteAuth {
			return render(false)
		}
		return redirect(t.Login)

	case StateOnboardingRequired:
		if category == RouteOnboarding {
			return render(false)
		}
		return redirect(t.Onboarding)

	case StateAuthenticated:
		if category != RouteApp {
			return redirect(t.AppRoot)
		}
		return render(true)

	default:
		return RouteDecision{Action: ActionWait}
	}
}

// Decide routes p for state using DefaultRouteTable
func Decide(state State, p string) RouteDecision {
	return DefaultRouteTable().Decide(state, p)
}
