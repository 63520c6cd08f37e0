package session

import (
	"encoding/json"
	"image"
	"os"
	"time"

	apperrors "github.com/clickpilot/clickpilot/internal/errors"
	"github.com/clickpilot/clickpilot/internal/journal"
	"github.com/clickpilot/clickpilot/internal/screen"
)

// journalLinesPersisted caps how much run log a snapshot file carries.
const journalLinesPersisted = 50

// persistedSession is the on-disk shape. Geometry and bookkeeping
// only; baseline pixels are deliberately absent.
type persistedSession struct {
	Region          screen.Region  `json:"region"`
	Anchor          image.Point    `json:"anchor"`
	HoldRegion      screen.Region  `json:"hold_region"`
	Completed       int            `json:"completed"`
	Target          int            `json:"target"`
	Budget          float64        `json:"budget,omitempty"`
	UnitCost        float64        `json:"unit_cost,omitempty"`
	ConfirmedClicks int            `json:"confirmed_clicks"`
	Journal         []journal.Line `json:"journal,omitempty"`
	SavedAt         time.Time      `json:"saved_at"`
}

// Save writes the session to path so a crash or restart can pick the
// run back up.
func (c *Coordinator) Save(path string) error {
	snap := c.Snapshot()
	p := persistedSession{
		Region:          snap.Region,
		Anchor:          snap.Anchor,
		HoldRegion:      snap.HoldRegion,
		Completed:       snap.Completed,
		Target:          snap.Target,
		Budget:          snap.Budget,
		UnitCost:        snap.UnitCost,
		ConfirmedClicks: snap.ConfirmedClicks,
		SavedAt:         time.Now(),
	}
	if c.journal != nil {
		p.Journal = c.journal.Recent(journalLinesPersisted)
	}

	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return apperrors.Wrap(err, apperrors.Internal, "marshal session")
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return apperrors.Wrap(err, apperrors.Internal, "write session file")
	}
	return nil
}

// Restore loads a saved session from path. Counts and targets come
// back; the capture does not, so the next Start fails with NoCapture
// until the user recaptures the region.
func (c *Coordinator) Restore(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return apperrors.Wrap(err, apperrors.Internal, "read session file")
	}

	var p persistedSession
	if err := json.Unmarshal(data, &p); err != nil {
		return apperrors.Wrap(err, apperrors.ConfigInvalid, "parse session file")
	}
	return c.restoreState(p)
}
