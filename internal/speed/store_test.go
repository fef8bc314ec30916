package speed

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// road=123, mile 8->9 limit 60, t=0 then t=45: 1 mile in 45s is 80mph.
func TestTicketGeneration(t *testing.T) {
	store := NewStore()
	sink := store.RegisterDispatcher([]uint16{123})

	store.RecordPlate(123, "UN1X", 8, 0, 60)
	store.RecordPlate(123, "UN1X", 9, 45, 60)

	select {
	case ticket := <-sink.ch:
		assert.Equal(t, "UN1X", ticket.Plate)
		assert.Equal(t, uint16(123), ticket.Road)
		assert.Equal(t, uint16(8000), ticket.SpeedCentiMPH)
	default:
		t.Fatal("expected a ticket to be delivered")
	}
}

func TestNoTicketUnderLimit(t *testing.T) {
	store := NewStore()
	sink := store.RegisterDispatcher([]uint16{1})
	store.RecordPlate(1, "SLOW1", 10, 0, 60)
	store.RecordPlate(1, "SLOW1", 11, 3600, 60) // exactly 1mph, under limit
	select {
	case <-sink.ch:
		t.Fatal("no ticket expected")
	default:
	}
}

func TestOneTicketPerPlatePerDay(t *testing.T) {
	store := NewStore()
	sink := store.RegisterDispatcher([]uint16{1})

	// Two separate speeding pairs on the same day for the same plate.
	store.RecordPlate(1, "DUP1", 0, 0, 10)
	store.RecordPlate(1, "DUP1", 100, 100, 10) // fast pair #1 -> ticket
	store.RecordPlate(1, "DUP1", 200, 200, 10) // fast pair #2, same day -> must not ticket again

	require.Len(t, drain(sink.ch), 1)
}

func TestPendingTicketDeliveredOnLateDispatcherConnect(t *testing.T) {
	store := NewStore()
	store.RecordPlate(5, "LATE1", 0, 0, 10)
	store.RecordPlate(5, "LATE1", 100, 100, 10)

	sink := store.RegisterDispatcher([]uint16{5})
	require.Len(t, drain(sink.ch), 1)
}

func drain(ch chan Ticket) []Ticket {
	var out []Ticket
	for {
		select {
		case t := <-ch:
			out = append(out, t)
		default:
			return out
		}
	}
}
