package aggregator

import (
	"fmt"

	"github.com/angelmondragon/receipt-generator/pkg/bizevents"
	"github.com/angelmondragon/receipt-generator/pkg/db/models"
	"github.com/angelmondragon/receipt-generator/pkg/enums"
)

const (
	debtorKey = "debtor"
	payerKey  = "payer"
)

// BuildSlots lists the recipients that get a document for events. An empty
// result means nobody can be notified.
func BuildSlots(events []bizevents.BizEvent, isCart bool) []models.Outcome {
	if len(events) == 0 {
		return nil
	}
	if !isCart {
		return singleSlots(events[0])
	}
	return cartSlots(events)
}

func singleSlots(event bizevents.BizEvent) []models.Outcome {
	slots := []models.Outcome{}
	debtor := event.DebtorFiscalCode()
	if bizevents.IsKnownFiscalCode(debtor) {
		slots = append(slots, newSlot(debtorKey, enums.RecipientDebtor, debtor, 0))
	}
	payer := event.PayerFiscalCode()
	if bizevents.IsKnownFiscalCode(payer) && payer != debtor {
		slots = append(slots, newSlot(payerKey, enums.RecipientPayer, payer, 0))
	}
	return slots
}

func cartSlots(events []bizevents.BizEvent) []models.Outcome {
	slots := []models.Outcome{}

	payer := events[0].PayerFiscalCode()
	if bizevents.IsKnownFiscalCode(payer) {
		all := make([]int, len(events))
		for i := range events {
			all[i] = i
		}
		slots = append(slots, models.Outcome{
			Key:          payerKey,
			Role:         enums.RecipientPayer,
			FiscalCode:   payer,
			EventIndexes: all,
			State:        enums.SlotStatePending,
		})
	}

	byDebtor := map[string]int{}
	for i, event := range events {
		debtor := event.DebtorFiscalCode()
		if !bizevents.IsKnownFiscalCode(debtor) || debtor == payer {
			continue
		}
		if pos, ok := byDebtor[debtor]; ok {
			slots[pos].EventIndexes = append(slots[pos].EventIndexes, i)
			continue
		}
		byDebtor[debtor] = len(slots)
		key := fmt.Sprintf("%s-%d", debtorKey, len(byDebtor))
		slots = append(slots, newSlot(key, enums.RecipientDebtor, debtor, i))
	}
	return slots
}

func newSlot(key string, role enums.RecipientRole, fiscalCode string, eventIndex int) models.Outcome {
	return models.Outcome{
		Key:          key,
		Role:         role,
		FiscalCode:   fiscalCode,
		EventIndexes: []int{eventIndex},
		State:        enums.SlotStatePending,
	}
}
