package services

import "github.com/dmitrijs2005/landvault/internal/dbx"

// Partial unique indexes backstopping the one-latest and one-under-review
// group invariants. Two transactions racing on the same group can both pass
// their FOR UPDATE reads when no row exists to lock yet; the loser then hits
// one of these indexes with a unique violation instead of a serialization
// failure.
const (
	oneLatestIndex      = "document_versions_one_latest"
	oneUnderReviewIndex = "document_versions_one_under_review"
)

// isGroupContention reports whether err is a unique violation on one of the
// group invariant indexes. Such an error means the transaction lost a race
// and is safe to run again from the top.
func isGroupContention(err error) bool {
	return dbx.IsUniqueViolation(err, oneLatestIndex, oneUnderReviewIndex)
}
