package director

import (
	"context"
	"encoding/csv"
	"os"
	"time"

	"github.com/pkg/errors"

	"github.com/tjobarow/okta-fastpass-deployment-toolkit/okta"
	"github.com/tjobarow/okta-fastpass-deployment-toolkit/types"
)

// Enrollment verification outcomes written to the results artifact
const (
	EnrollmentVerified    = "enrolled"
	EnrollmentMissing     = "not_enrolled"
	EnrollmentCheckFailed = "lookup_failed"
)

var verificationHeader = []string{
	"userId",
	"userEmail",
	"enrollmentStatus",
	"verifiedAt",
}

// VerificationSummary is the outcome of one verification pass
type VerificationSummary struct {
	Verified     int
	StillMissing int
	Failed       int
}

// VerifyEnrollment re-checks every user from a scan artifact against a
// device index and writes a dated results CSV to outPath. The pass is
// read-only: it never touches factors, email or the ledger.
func VerifyEnrollment(ctx context.Context, client okta.ClientAPI, records []types.ReenrollmentRecord, index DeviceIndex, outPath string) (*VerificationSummary, error) {
	file, err := os.Create(outPath)
	if err != nil {
		return nil, errors.Wrapf(err, "create verification results %s", outPath)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write(verificationHeader); err != nil {
		return nil, errors.Wrap(err, "write verification header")
	}

	summary := &VerificationSummary{}
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		userID := rec.UserID
		status := EnrollmentCheckFailed
		if userID == "" {
			user, err := client.GetUserByEmail(ctx, rec.UserEmail)
			if err != nil {
				summary.Failed++
				ErrorLogger(LogHolder{UserEmail: rec.UserEmail, Message: "failed to look up user for verification: " + err.Error()})
				if err := writeVerificationRow(writer, userID, rec.UserEmail, status); err != nil {
					return summary, err
				}
				continue
			}
			userID = user.ID
		}

		if index.HasDevice(userID) {
			status = EnrollmentVerified
			summary.Verified++
			DebugLogger(LogHolder{UserID: userID, UserEmail: rec.UserEmail, Message: "user now has a registered device"})
		} else {
			status = EnrollmentMissing
			summary.StillMissing++
			WarnLogger(LogHolder{UserID: userID, UserEmail: rec.UserEmail, Message: "user still has no registered device"})
		}

		if err := writeVerificationRow(writer, userID, rec.UserEmail, status); err != nil {
			return summary, err
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return summary, errors.Wrap(err, "flush verification results")
	}
	return summary, nil
}

func writeVerificationRow(writer *csv.Writer, userID, email, status string) error {
	row := []string{userID, email, status, time.Now().UTC().Format(time.RFC3339)}
	if err := writer.Write(row); err != nil {
		return errors.Wrap(err, "write verification row")
	}
	writer.Flush()
	return writer.Error()
}
