package repositories

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

func TestAccessRequestLatestPending(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewAccessRequestRepository(db)

	sent := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	cols := []string{"id", "full_name", "phone_number", "country", "state", "city", "otp", "is_verified", "otp_sent_at", "otp_attempts", "created_at"}
	mock.ExpectQuery(`WHERE phone_number = \$1 AND is_verified = FALSE AND otp IS NOT NULL`).
		WithArgs("+77001112233").
		WillReturnRows(sqlmock.NewRows(cols).AddRow(3, "Asha", "+77001112233", "", "", "", "123456", false, sent, 1, sent))

	ar, err := repo.LatestPending(context.Background(), "+77001112233")
	require.NoError(t, err)
	require.Equal(t, int64(3), ar.ID)
	require.Equal(t, "123456", ar.OTP)
	require.Equal(t, 1, ar.OTPAttempts)
	require.Equal(t, sent, *ar.OTPSentAt)

	mock.ExpectQuery(`otp IS NOT NULL`).WillReturnRows(sqlmock.NewRows(cols))
	ar, err = repo.LatestPending(context.Background(), "+70000000000")
	require.NoError(t, err)
	require.Nil(t, ar)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAccessRequestInvalidatePendingKeepsNewest(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewAccessRequestRepository(db)

	mock.ExpectExec(regexp.QuoteMeta(`SET otp = NULL`)).
		WithArgs("+77001112233", int64(9)).
		WillReturnResult(sqlmock.NewResult(0, 2))

	n, err := repo.InvalidatePending(context.Background(), "+77001112233", 9)
	require.NoError(t, err)
	require.Equal(t, int64(2), n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAccessRequestMarkVerifiedTwice(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	repo := NewAccessRequestRepository(db)

	q := regexp.QuoteMeta(`UPDATE access_requests SET is_verified = TRUE, otp = NULL WHERE id = $1 AND is_verified = FALSE`)
	mock.ExpectExec(q).WithArgs(int64(3)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q).WithArgs(int64(3)).WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.MarkVerified(context.Background(), 3))
	require.ErrorIs(t, repo.MarkVerified(context.Background(), 3), ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}
