package email

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sentMail struct {
	addr string
	to   []string
	msg  string
}

func newTestService() (*Service, *[]sentMail) {
	sent := &[]sentMail{}
	svc := NewService("smtp.local", "1025", "noreply@ewaste.example", nil)
	svc.send = func(addr, _ string, to []string, msg []byte) error {
		*sent = append(*sent, sentMail{addr: addr, to: to, msg: string(msg)})
		return nil
	}
	return svc, sent
}

func TestService_SendRequestReceived(t *testing.T) {
	svc, sent := newTestService()

	err := svc.SendRequestReceived(context.Background(), "shop@example.com", RequestReceived{
		RecyclerName:     "Green",
		OwnerName:        "Asha <script>",
		PostID:           "0123456789abcdef",
		UserAddress:      "Pune",
		ProductCount:     2,
		AISuggestedTotal: 1250,
	})

	require.NoError(t, err)
	require.Len(t, *sent, 1)
	mail := (*sent)[0]
	assert.Equal(t, "smtp.local:1025", mail.addr)
	assert.Equal(t, []string{"shop@example.com"}, mail.to)
	assert.Contains(t, mail.msg, "Subject: New pickup request for post 01234567")
	assert.Contains(t, mail.msg, "₹1250.00")
	assert.Contains(t, mail.msg, "Asha &lt;script&gt;")
	assert.NotContains(t, mail.msg, "<script>")
}

func TestService_SendRequestAnswered(t *testing.T) {
	svc, sent := newTestService()
	price := 900.0

	require.NoError(t, svc.SendRequestAnswered(context.Background(), "asha@example.com", RequestAnswered{
		OwnerName: "Asha", ShopName: "Green", PostID: "post-1", Accepted: true, FinalPrice: &price,
	}))
	require.NoError(t, svc.SendRequestAnswered(context.Background(), "asha@example.com", RequestAnswered{
		OwnerName: "Asha", ShopName: "Blue", PostID: "post-1",
	}))

	require.Len(t, *sent, 2)
	assert.Contains(t, (*sent)[0].msg, "Subject: Green accepted your request")
	assert.Contains(t, (*sent)[0].msg, "₹900.00")
	assert.Contains(t, (*sent)[1].msg, "Subject: Blue declined your request")
}

func TestService_SendPriceFinalized(t *testing.T) {
	svc, sent := newTestService()

	require.NoError(t, svc.SendPriceFinalized(context.Background(), "asha@example.com", PriceFinalized{
		Name: "Asha", PostID: "post-1", Price: 1100, FinalizedBy: "recycler",
	}))

	assert.Contains(t, (*sent)[0].msg, "finalized at <strong>₹1100.00</strong> by the recycler")
}

func TestService_RejectsHeaderInjection(t *testing.T) {
	svc, sent := newTestService()

	err := svc.SendPriceFinalized(context.Background(), "a@example.com\r\nBcc: x@example.com", PriceFinalized{PostID: "p"})

	assert.Error(t, err)
	assert.Empty(t, *sent)
}

func TestService_SMTPFailure(t *testing.T) {
	svc, _ := newTestService()
	svc.send = func(string, string, []string, []byte) error { return errors.New("connection refused") }

	err := svc.SendPriceFinalized(context.Background(), "a@example.com", PriceFinalized{PostID: "p"})

	assert.EqualError(t, err, "connection refused")
}
