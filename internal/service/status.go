package service

import "autocare/backend/internal/domain"

// orderTransitions maps each status to the statuses it may move to directly.
// COMPLETED and CANCELLED are terminal.
var orderTransitions = map[string][]string{
	domain.OrderStatusPending: {
		domain.OrderStatusInProgress,
		domain.OrderStatusCancelled,
	},
	domain.OrderStatusInProgress: {
		domain.OrderStatusAwaitingPart,
		domain.OrderStatusAwaitingApproval,
		domain.OrderStatusCompleted,
		domain.OrderStatusPending,
		domain.OrderStatusCancelled,
	},
	domain.OrderStatusAwaitingPart: {
		domain.OrderStatusInProgress,
		domain.OrderStatusCompleted,
		domain.OrderStatusCancelled,
	},
	domain.OrderStatusAwaitingApproval: {
		domain.OrderStatusInProgress,
		domain.OrderStatusCompleted,
		domain.OrderStatusCancelled,
	},
	domain.OrderStatusCompleted: {},
	domain.OrderStatusCancelled: {},
}

func ValidOrderStatus(status string) bool {
	_, ok := orderTransitions[status]
	return ok
}

func IsTerminalStatus(status string) bool {
	return status == domain.OrderStatusCompleted || status == domain.OrderStatusCancelled
}

// CanTransition reports whether an order may move from one status to
// another in a single step.
func CanTransition(from string, to string) bool {
	for _, allowed := range orderTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// stockApplied reports whether a status implies the order's product items
// have been drawn from stock.
func stockApplied(status string) bool {
	return status == domain.OrderStatusInProgress || status == domain.OrderStatusCompleted
}
