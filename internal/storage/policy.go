package storage

import "gitlab.ozon.dev/pupkingeorgij/catalog/internal/config"

type Policy struct {
	// RequireVersion rejects product updates that carry no expected version.
	RequireVersion bool
	Transitions    TransitionTable
	// FreezeItems allows item edits only while the order is pending.
	FreezeItems bool
	// RouteTerminal sends SetStatus to canceled or refunded through Cancel
	// and Refund, so their guards and inventory release apply.
	RouteTerminal bool
}

// DefaultPolicy accepts any known status from any status and leaves items
// editable, matching the historical behaviour of the service.
func DefaultPolicy() Policy {
	return Policy{Transitions: PermissiveTransitions}
}

func StrictPolicy() Policy {
	return Policy{Transitions: StrictTransitions, FreezeItems: true, RouteTerminal: true}
}

func PolicyFromConfig(cfg config.Policy) Policy {
	p := DefaultPolicy()
	if cfg.Transitions == config.TransitionsStrict {
		p = StrictPolicy()
	}
	p.RequireVersion = cfg.RequireVersion
	return p
}
