package aggregator

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/angelmondragon/receipt-generator/internal/status"
	"github.com/angelmondragon/receipt-generator/pkg/bizevents"
	"github.com/angelmondragon/receipt-generator/pkg/db/models"
	"github.com/angelmondragon/receipt-generator/pkg/enums"
	pkgerrors "github.com/angelmondragon/receipt-generator/pkg/errors"
	"github.com/angelmondragon/receipt-generator/pkg/logger"
)

// Store is the subset of the status manager the aggregator writes through.
type Store interface {
	Load(ctx context.Context, id string) (*models.Receipt, error)
	Insert(ctx context.Context, rec *models.Receipt) error
	Update(ctx context.Context, id string, mutation status.Mutation) (*models.Receipt, error)
}

// Unit is a single payment or a completed cart ready for generation.
type Unit struct {
	ID      string
	IsCart  bool
	Receipt *models.Receipt
	// Pending is set on a redelivered cart event whose cart was already
	// emitted and still awaits generation.
	Pending bool
}

type Aggregator struct {
	store Store
	logg  *logger.Logger
}

func New(store Store, logg *logger.Logger) (*Aggregator, error) {
	if store == nil {
		return nil, errors.New("status store is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	return &Aggregator{store: store, logg: logg}, nil
}

// Aggregate records event and reports whether a unit of work is ready.
// Redelivered single payments are emitted again; carts are emitted once, by the
// event that completes them.
func (a *Aggregator) Aggregate(ctx context.Context, event bizevents.BizEvent) (Unit, bool, error) {
	if event.ID == "" {
		return Unit{}, false, pkgerrors.New(pkgerrors.CodeNotToRetry, "biz event id is required")
	}
	if !event.IsCart() {
		return a.aggregateSingle(ctx, event)
	}
	return a.aggregateCart(ctx, event)
}

func (a *Aggregator) aggregateSingle(ctx context.Context, event bizevents.BizEvent) (Unit, bool, error) {
	events := []bizevents.BizEvent{event}
	rec := &models.Receipt{
		ID:          event.ID,
		TotalNotice: 1,
		Status:      enums.ReceiptStatusInserted,
		EventData:   events,
		Slots:       BuildSlots(events, false),
	}
	if len(rec.Slots) == 0 {
		rec.Status = enums.ReceiptStatusNotToNotify
	}

	err := a.store.Insert(ctx, rec)
	switch {
	case err == nil:
		a.logg.Info(a.logg.WithField(ctx, "slots", len(rec.Slots)), "receipt inserted")
	case pkgerrors.IsCode(err, pkgerrors.CodeConflict):
		existing, loadErr := a.store.Load(ctx, event.ID)
		if loadErr != nil {
			return Unit{}, false, loadErr
		}
		a.logg.Info(ctx, "receipt already present, reusing record")
		rec = existing
	default:
		return Unit{}, false, err
	}

	return Unit{ID: rec.ID, Receipt: rec}, true, nil
}

func (a *Aggregator) aggregateCart(ctx context.Context, event bizevents.BizEvent) (Unit, bool, error) {
	cartID := event.CartID()
	if cartID == "" {
		return Unit{}, false, pkgerrors.New(pkgerrors.CodeNotToRetry, fmt.Sprintf("cart event %s has no transaction id", event.ID))
	}
	ctx = a.logg.WithFields(ctx, map[string]any{"cart_id": cartID, "total_notice": event.TotalNotices()})

	_, err := a.store.Load(ctx, cartID)
	switch {
	case err == nil:
	case pkgerrors.IsCode(err, pkgerrors.CodeNotFound):
		inserted, insertErr := a.insertCart(ctx, cartID, event)
		if insertErr == nil {
			return inserted, false, nil
		}
		if !pkgerrors.IsCode(insertErr, pkgerrors.CodeConflict) {
			return Unit{}, false, insertErr
		}
		// another worker created the cart first
	default:
		return Unit{}, false, err
	}

	completed := false
	rec, err := a.store.Update(ctx, cartID, func(rec *models.Receipt) error {
		completed = false
		if rec.Status != enums.ReceiptStatusWaitingForEvent || rec.ContainsEvent(event.ID) {
			return status.ErrNoChange
		}
		rec.EventData = append(rec.EventData, event)
		if len(rec.EventData) < rec.TotalNotice {
			return nil
		}
		completeCart(rec)
		completed = true
		return nil
	})
	if err != nil {
		return Unit{}, false, err
	}

	if !completed {
		unit := Unit{ID: cartID, IsCart: true, Receipt: rec}
		if rec.Status != enums.ReceiptStatusWaitingForEvent && rec.ContainsEvent(event.ID) {
			unit.Pending = rec.Status.IsGeneratable()
			a.logg.Info(a.logg.WithFields(ctx, map[string]any{"status": rec.Status, "pending": unit.Pending}), "cart event redelivered")
			return unit, false, nil
		}
		a.logg.Info(a.logg.WithField(ctx, "events", len(rec.EventData)), "cart event recorded")
		return unit, false, nil
	}

	a.logg.Info(a.logg.WithField(ctx, "slots", len(rec.Slots)), "cart complete")
	return Unit{ID: cartID, IsCart: true, Receipt: rec}, true, nil
}

func (a *Aggregator) insertCart(ctx context.Context, cartID string, event bizevents.BizEvent) (Unit, error) {
	rec := &models.Receipt{
		ID:          cartID,
		IsCart:      true,
		TotalNotice: event.TotalNotices(),
		Status:      enums.ReceiptStatusWaitingForEvent,
		EventData:   []bizevents.BizEvent{event},
		Slots:       []models.Outcome{},
	}
	if err := a.store.Insert(ctx, rec); err != nil {
		return Unit{}, err
	}
	a.logg.Info(ctx, "cart opened")
	return Unit{ID: cartID, IsCart: true, Receipt: rec}, nil
}

func completeCart(rec *models.Receipt) {
	sort.SliceStable(rec.EventData, func(i, j int) bool {
		return rec.EventData[i].ID < rec.EventData[j].ID
	})
	rec.Slots = BuildSlots(rec.EventData, true)
	rec.Status = enums.ReceiptStatusInserted
	if len(rec.Slots) == 0 {
		rec.Status = enums.ReceiptStatusNotToNotify
	}
}
