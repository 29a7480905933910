// Package lifecycle holds the order state machine shared by every role
// terminal. The store does not enforce transitions, so every mutation
// validates here first and then lands as a conditional write.
package lifecycle

import (
	"errors"
	"fmt"

	"github.com/comanda-pos/api/internal/enum"
)

// ErrNoKitchenAdvance rejects a kitchen advance attempted from a status
// outside the pendente → aceito → preparando → enviado ladder.
var ErrNoKitchenAdvance = errors.New("status has no kitchen advance")

// allowedTransitions defines valid status transitions.
// Key is current status, value is the set of statuses it can transition to.
var allowedTransitions = map[string][]string{
	enum.OrderStatusPendente:   {enum.OrderStatusAceito, enum.OrderStatusCancelado},
	enum.OrderStatusAceito:     {enum.OrderStatusPreparando, enum.OrderStatusPendente, enum.OrderStatusCancelado},
	enum.OrderStatusPreparando: {enum.OrderStatusEnviado, enum.OrderStatusAceito, enum.OrderStatusCancelado},
	enum.OrderStatusEnviado:    {enum.OrderStatusEntregue, enum.OrderStatusConcluido, enum.OrderStatusEmRota, enum.OrderStatusCancelado},
	enum.OrderStatusEmRota:     {enum.OrderStatusEntregue},
}

// CanTransition reports whether an order on the given channel may move from
// one status to another. em_rota is reachable only on the delivery channel.
func CanTransition(channel, from, to string) error {
	if to == enum.OrderStatusEmRota && channel != enum.ChannelEntrega {
		return fmt.Errorf("status em_rota requires channel entrega, got %s", channel)
	}
	allowed, ok := allowedTransitions[from]
	if !ok {
		return fmt.Errorf("cannot transition from %s", from)
	}
	for _, s := range allowed {
		if s == to {
			return nil
		}
	}
	return fmt.Errorf("cannot transition from %s to %s", from, to)
}

// IsTerminal reports whether a status admits no further normal transitions.
// The entregue → enviado operator revert is a documented escape hatch and
// deliberately not part of the transition table.
func IsTerminal(status string) bool {
	switch status {
	case enum.OrderStatusEntregue, enum.OrderStatusConcluido, enum.OrderStatusCancelado:
		return true
	}
	return false
}

// IsItemTerminal reports whether a per-item status is final.
func IsItemTerminal(status string) bool {
	switch status {
	case enum.ItemStatusEntregue, enum.ItemStatusCancelado:
		return true
	}
	return false
}

// NextKitchenStatus returns the single legal kitchen advance from the
// given status. Any other status rejects, which is the gatekeeper against
// a double-advance from two kitchen terminals.
func NextKitchenStatus(current string) (string, error) {
	switch current {
	case enum.OrderStatusPendente:
		return enum.OrderStatusAceito, nil
	case enum.OrderStatusAceito:
		return enum.OrderStatusPreparando, nil
	case enum.OrderStatusPreparando:
		return enum.OrderStatusEnviado, nil
	}
	return "", fmt.Errorf("%w: %s", ErrNoKitchenAdvance, current)
}

// PlaceholderName is the auto-generated customer name for a table order
// until a real name is supplied.
func PlaceholderName(tableNumber int32) string {
	return fmt.Sprintf("Mesa %d", tableNumber)
}

// ResolveName implements the monotone name upgrade: a real name replaces a
// placeholder or empty one, and once held is never downgraded back.
func ResolveName(current string, currentPlaceholder bool, candidate string, candidatePlaceholder bool) (string, bool) {
	if current == "" || (currentPlaceholder && !candidatePlaceholder && candidate != "") {
		return candidate, candidatePlaceholder
	}
	return current, currentPlaceholder
}
