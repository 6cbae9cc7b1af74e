package verifier

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	log "github.com/sirupsen/logrus"

	"github.com/razvantomegea/movin-contracts-sub001/pkgs/executor"
	"github.com/razvantomegea/movin-contracts-sub001/pkgs/staking"
)

// Status of one sampled user's post-migration check
type Status string

const (
	StatusConsistent   Status = "consistent"
	StatusInconsistent Status = "inconsistent"
	StatusUnavailable  Status = "unavailable"
)

// Note is the diagnostic produced for one sampled user
type Note struct {
	User   common.Address
	Status Status
	Detail string
}

// SnapshotService re-queries user state after confirmation.
// *staking.StakingV2 satisfies it.
type SnapshotService interface {
	GetUserSnapshot(ctx context.Context, user common.Address) (*staking.UserSnapshot, error)
}

// Verifier compares sampled users' post-migration state against the
// pre-migration snapshots captured by the executor. Inconsistency is
// reported, never auto-corrected; this is a diagnostic aid, not a
// correctness gate, and the run is never rolled back because of it.
type Verifier struct {
	service SnapshotService
}

// New creates a verifier over the given snapshot service
func New(service SnapshotService) *Verifier {
	return &Verifier{service: service}
}

// VerifyBatch produces one note per user sampled for the batch
func (v *Verifier) VerifyBatch(ctx context.Context, outcome executor.Outcome) []Note {
	notes := make([]Note, 0, len(outcome.Sampled))

	for _, user := range outcome.Sampled {
		note := v.verifyUser(ctx, user, outcome.PreSnapshots[user])
		if note.Status != StatusConsistent {
			log.WithFields(log.Fields{
				"batch":  outcome.BatchIndex,
				"user":   user.Hex(),
				"status": note.Status,
				"detail": note.Detail,
			}).Warn("Post-migration verification flag")
		}
		notes = append(notes, note)
	}

	return notes
}

func (v *Verifier) verifyUser(ctx context.Context, user common.Address, pre *staking.UserSnapshot) Note {
	post, err := v.service.GetUserSnapshot(ctx, user)
	if err != nil {
		return Note{User: user, Status: StatusUnavailable, Detail: err.Error()}
	}

	if pre == nil {
		// No baseline was captured; nothing to compare against
		return Note{User: user, Status: StatusUnavailable, Detail: "no pre-migration snapshot"}
	}

	if pre.StakeCount.Cmp(post.StakeCount) != 0 {
		return Note{User: user, Status: StatusInconsistent,
			Detail: "stake count changed: " + pre.StakeCount.String() + " -> " + post.StakeCount.String()}
	}

	if pre.PendingRewards.Cmp(post.PendingRewards) != 0 {
		return Note{User: user, Status: StatusInconsistent,
			Detail: "pending rewards changed: " + pre.PendingRewards.String() + " -> " + post.PendingRewards.String()}
	}

	return Note{User: user, Status: StatusConsistent}
}
