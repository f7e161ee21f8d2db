package mergequeue

import (
	"fmt"

	"github.com/warden-ci/warden/pkg/provider"
)

// checksPassing reports whether the combined commit status and every check
// run are green. Any failure or still-pending result fails the gate. A ref
// with no status contexts at all passes on the status side; check runs are
// still consulted.
func checksPassing(combined *provider.CombinedStatus, runs []provider.CheckRun) (bool, string) {
	if combined != nil && combined.TotalCount > 0 && combined.State != "success" {
		return false, "combined status is " + combined.State
	}
	for _, run := range runs {
		switch run.Conclusion {
		case "success", "neutral":
		case "pending":
			return false, fmt.Sprintf("check run %q is pending", run.Name)
		default:
			return false, fmt.Sprintf("check run %q concluded %s", run.Name, run.Conclusion)
		}
	}
	return true, ""
}

// approvalsSatisfied evaluates the latest verdict per reviewer. Any
// reviewer whose latest verdict is CHANGES_REQUESTED fails the gate
// outright; otherwise the approval count must meet the requirement.
// Comment-only reviews carry no verdict and dismissals clear one.
func approvalsSatisfied(reviews []provider.Review, required int) (bool, string) {
	verdicts := make(map[string]string)
	for _, review := range reviews {
		switch review.State {
		case "APPROVED", "CHANGES_REQUESTED":
			verdicts[review.User.Login] = review.State
		case "DISMISSED":
			delete(verdicts, review.User.Login)
		}
	}

	approvals := 0
	for reviewer, state := range verdicts {
		if state == "CHANGES_REQUESTED" {
			return false, "changes requested by " + reviewer
		}
		approvals++
	}
	if approvals < required {
		return false, fmt.Sprintf("%d of %d required approvals", approvals, required)
	}
	return true, ""
}
