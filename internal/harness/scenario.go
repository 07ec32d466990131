package harness

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Scenario is one declarative end-to-end exercise of the engine: seed a
// backend, open scopes, replay a sequence of steps, then assert on the trace
// and the final store contents.
type Scenario struct {
	// Name uniquely identifies this scenario. It doubles as the golden file
	// name.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Actor is the local signed-in identity the engine runs as.
	Actor string `yaml:"actor"`

	// Seed establishes backend state before any step runs.
	Seed Seed `yaml:"seed,omitempty"`

	// Scopes are opened, in order, before the steps run.
	Scopes []string `yaml:"scopes"`

	// Steps is the replayed sequence of user actions, remote-peer actions,
	// feed deliveries, visibility flips, and clock advances.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final trace and state.
	Assertions []Assertion `yaml:"assertions"`
}

// Seed is the backend state that exists before the scenario starts.
type Seed struct {
	Posts   []SeedPost   `yaml:"posts,omitempty"`
	Follows []SeedFollow `yaml:"follows,omitempty"`
}

// SeedPost creates one post. The alias names it in steps, assertions, and
// golden traces; the real backend id is random and never surfaces.
type SeedPost struct {
	Alias   string `yaml:"alias"`
	Author  string `yaml:"author"`
	Caption string `yaml:"caption,omitempty"`
}

// SeedFollow creates one follow edge.
type SeedFollow struct {
	Follower string `yaml:"follower"`
	Followee string `yaml:"followee"`
}

// Step actions.
const (
	StepLoad          = "load"
	StepRefresh       = "refresh"
	StepLoadMore      = "load-more"
	StepLike          = "like"
	StepUnlike        = "unlike"
	StepComment       = "comment"
	StepDeleteComment = "delete-comment"
	StepDeletePost    = "delete-post"
	StepUnfollow      = "unfollow"
	StepOpen          = "open"
	StepClose         = "close"
	StepHide          = "hide"
	StepShow          = "show"
	StepMediaStart    = "media-start"
	StepMediaCancel   = "media-cancel"
	StepAdvance       = "advance"
	StepDeliverFeed   = "deliver-feed"
)

// Step is one replayed event. Action selects the kind; the other fields
// parameterize it.
type Step struct {
	// Action is one of the Step* constants.
	Action string `yaml:"action"`

	// Scope the step targets (engagement, load, visibility, lifecycle).
	Scope string `yaml:"scope,omitempty"`

	// Post is a seed alias, or a raw id for posts the backend never had.
	Post string `yaml:"post,omitempty"`

	// Actor, when set to someone other than the scenario's local actor,
	// routes an engagement step directly to the backend as that peer.
	Actor string `yaml:"actor,omitempty"`

	// Comment is the body for a comment step.
	Comment string `yaml:"comment,omitempty"`

	// SaveAs stores the id a comment step mints, for later delete-comment.
	SaveAs string `yaml:"save_as,omitempty"`

	// CommentID is a SaveAs alias naming the comment to delete.
	CommentID string `yaml:"comment_id,omitempty"`

	// Author is the unfollow target.
	Author string `yaml:"author,omitempty"`

	// Duration is how far an advance step moves the clock (Go syntax).
	Duration string `yaml:"duration,omitempty"`

	// ExpectError, when set, requires the step to fail with the named
	// engine error code (for example "ROLLED_BACK"). A step without it must
	// succeed.
	ExpectError string `yaml:"expect_error,omitempty"`
}

func (s Step) duration() (time.Duration, error) {
	return time.ParseDuration(s.Duration)
}

// LoadScenario reads and parses a scenario YAML file. Unknown fields are
// rejected so typos fail loudly instead of silently skipping a step.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("parse scenario: %w", err)
	}
	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario %s: %w", path, err)
	}
	return &scenario, nil
}

var engagementSteps = map[string]bool{
	StepLike:          true,
	StepUnlike:        true,
	StepComment:       true,
	StepDeleteComment: true,
	StepDeletePost:    true,
	StepUnfollow:      true,
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Actor == "" {
		return fmt.Errorf("actor is required")
	}
	if len(s.Scopes) == 0 {
		return fmt.Errorf("scopes list is required and must be non-empty")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	aliases := make(map[string]bool)
	for i, p := range s.Seed.Posts {
		if p.Alias == "" {
			return fmt.Errorf("seed.posts[%d]: alias is required", i)
		}
		if p.Author == "" {
			return fmt.Errorf("seed.posts[%d]: author is required", i)
		}
		if aliases[p.Alias] {
			return fmt.Errorf("seed.posts[%d]: duplicate alias %q", i, p.Alias)
		}
		aliases[p.Alias] = true
	}
	for i, f := range s.Seed.Follows {
		if f.Follower == "" || f.Followee == "" {
			return fmt.Errorf("seed.follows[%d]: follower and followee are required", i)
		}
	}

	commentAliases := make(map[string]bool)
	for i, step := range s.Steps {
		if err := validateStep(i, step, commentAliases); err != nil {
			return err
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, a); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(i int, step Step, commentAliases map[string]bool) error {
	switch step.Action {
	case StepLoad, StepRefresh, StepLoadMore, StepOpen, StepClose, StepHide, StepShow:
		if step.Scope == "" {
			return fmt.Errorf("steps[%d]: scope is required for %s", i, step.Action)
		}
	case StepLike, StepUnlike, StepDeletePost:
		if step.Post == "" {
			return fmt.Errorf("steps[%d]: post is required for %s", i, step.Action)
		}
		if step.Actor == "" && step.Scope == "" {
			return fmt.Errorf("steps[%d]: scope is required for a local %s", i, step.Action)
		}
	case StepComment:
		if step.Post == "" || step.Comment == "" {
			return fmt.Errorf("steps[%d]: post and comment are required for comment", i)
		}
		if step.Actor == "" && step.Scope == "" {
			return fmt.Errorf("steps[%d]: scope is required for a local comment", i)
		}
		if step.SaveAs != "" {
			commentAliases[step.SaveAs] = true
		}
	case StepDeleteComment:
		if step.CommentID == "" {
			return fmt.Errorf("steps[%d]: comment_id is required for delete-comment", i)
		}
		if !commentAliases[step.CommentID] {
			return fmt.Errorf("steps[%d]: comment_id %q was never saved by an earlier comment step", i, step.CommentID)
		}
		if step.Actor == "" && step.Scope == "" {
			return fmt.Errorf("steps[%d]: scope is required for a local delete-comment", i)
		}
	case StepUnfollow:
		if step.Author == "" {
			return fmt.Errorf("steps[%d]: author is required for unfollow", i)
		}
		if step.Actor == "" && step.Scope == "" {
			return fmt.Errorf("steps[%d]: scope is required for a local unfollow", i)
		}
	case StepMediaStart, StepMediaCancel:
		if step.Scope == "" || step.Post == "" {
			return fmt.Errorf("steps[%d]: scope and post are required for %s", i, step.Action)
		}
	case StepAdvance:
		if _, err := step.duration(); err != nil {
			return fmt.Errorf("steps[%d]: bad duration %q: %w", i, step.Duration, err)
		}
	case StepDeliverFeed:
		// No parameters.
	case "":
		return fmt.Errorf("steps[%d]: action is required", i)
	default:
		return fmt.Errorf("steps[%d]: unknown action %q", i, step.Action)
	}

	if step.ExpectError != "" {
		local := engagementSteps[step.Action] ||
			step.Action == StepLoad || step.Action == StepRefresh || step.Action == StepLoadMore
		if !local || step.Actor != "" {
			return fmt.Errorf("steps[%d]: expect_error only applies to local engine steps", i)
		}
	}
	return nil
}
