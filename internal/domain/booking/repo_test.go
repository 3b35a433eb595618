package booking

import (
	"context"
	"os"
	"testing"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tutormarket/backend/internal/store"
)

func emulatorRepo(t *testing.T) (*Repo, *firestore.Client) {
	t.Helper()
	if os.Getenv("FIRESTORE_EMULATOR_HOST") == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST not set")
	}
	client, err := firestore.NewClient(context.Background(), "demo-tutormarket")
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return NewRepo(client), client
}

func TestMarkPaidUnknownBooking(t *testing.T) {
	repo, client := emulatorRepo(t)
	ctx := context.Background()
	id := "missing-" + uuid.NewString()

	err := repo.MarkPaid(ctx, id, "cs_1", "pi_1")
	assert.True(t, IsErrNotFound(err), "got %v", err)

	_, err = client.Collection(store.ColBookings).Doc(id).Get(ctx)
	assert.True(t, store.IsNotFound(err), "no document may be created for an unknown id")
}

func TestMarkPaid(t *testing.T) {
	repo, _ := emulatorRepo(t)
	ctx := context.Background()

	b, err := repo.Create(ctx, Booking{StudentID: "stu", TeacherID: "tea", AmountPaid: 50, PaymentStatus: PaymentUnpaid})
	require.NoError(t, err)

	require.NoError(t, repo.MarkPaid(ctx, b.ID, "cs_1", "pi_1"))

	got, err := repo.Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, PaymentPaid, got.PaymentStatus)
	assert.Equal(t, StatusPending, got.Status)
}
