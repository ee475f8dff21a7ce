package transport

import "context"

// HookInput carries one tool call to a hook. ToolUseID and ToolResult
// are populated only for post-execution hooks.
type HookInput struct {
	ToolName   string
	ToolInput  map[string]interface{}
	ToolUseID  string
	ToolResult string
}

// HookOutput is a hook's verdict on a tool call.
type HookOutput struct {
	// Continue false aborts the whole query; hooks in this system
	// always leave it true and express denial through Decision.
	Continue bool
	// Decision is "allow" or "deny". Empty means no opinion.
	Decision string
	// Reason explains a deny in human-readable form.
	Reason string
}

// Hook decisions.
const (
	DecisionAllow = "allow"
	DecisionDeny  = "deny"
)

// HookFunc evaluates one tool call. Hooks may block (path resolution,
// human approval) and must honor ctx cancellation.
type HookFunc func(ctx context.Context, in HookInput) (HookOutput, error)

// Allow is the neutral hook verdict.
func Allow() HookOutput {
	return HookOutput{Continue: true, Decision: DecisionAllow}
}

// Deny builds a denial verdict with a reason.
func Deny(reason string) HookOutput {
	return HookOutput{Continue: true, Decision: DecisionDeny, Reason: reason}
}

// ChainHooks composes hooks left to right; the first deny or error
// wins and later hooks are not consulted.
func ChainHooks(hooks ...HookFunc) HookFunc {
	return func(ctx context.Context, in HookInput) (HookOutput, error) {
		for _, hook := range hooks {
			if hook == nil {
				continue
			}
			out, err := hook(ctx, in)
			if err != nil {
				return out, err
			}
			if out.Decision == DecisionDeny || !out.Continue {
				return out, nil
			}
		}
		return Allow(), nil
	}
}
