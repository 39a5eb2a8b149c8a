package service

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/theheadmen/cafeloyalty/internal/dbconnector"
	"github.com/theheadmen/cafeloyalty/internal/service/servicetest"
)

var _ Storage = (*servicetest.MemStorage)(nil)

func tier(id uint, requirement int) dbconnector.Tier {
	return dbconnector.Tier{ID: id, Name: "tier", VisitRequirement: requirement, IsActive: true}
}

func reward(id, tierID uint, rewardType dbconnector.RewardType, value string) dbconnector.Reward {
	r := dbconnector.Reward{ID: id, TierID: tierID, Name: "reward", RewardType: rewardType, IsActive: true}
	if value != "" {
		r.Value = decimal.NewNullDecimal(decimal.RequireFromString(value))
	}
	return r
}

func option(id uint, weight float64) dbconnector.SpinnerOption {
	return dbconnector.SpinnerOption{ID: id, RewardID: 1, Name: "option", RewardType: dbconnector.RewardFreeCoffee, Probability: weight, IsActive: true}
}

// scriptedSource replays fixed values.
type scriptedSource struct {
	values []float64
	next   int
}

func (s *scriptedSource) Float64() float64 {
	v := s.values[s.next%len(s.values)]
	s.next++
	return v
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []Notification
}

func (n *recordingNotifier) Notify(msg Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, msg)
}

func (n *recordingNotifier) messages() []Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Notification(nil), n.sent...)
}

type cafe struct {
	storage  *servicetest.MemStorage
	notifier *recordingNotifier
	users    int
}

func newCafe() *cafe {
	return &cafe{storage: servicetest.NewMemStorage(), notifier: &recordingNotifier{}}
}

func (c *cafe) addTier(t *testing.T, name string, requirement int) dbconnector.Tier {
	t.Helper()
	tr := dbconnector.Tier{Name: name, VisitRequirement: requirement, IsActive: true}
	require.NoError(t, c.storage.AddTier(context.Background(), &tr))
	return tr
}

func (c *cafe) addReward(t *testing.T, tierID uint, rewardType dbconnector.RewardType, value string) dbconnector.Reward {
	t.Helper()
	r := reward(0, tierID, rewardType, value)
	require.NoError(t, c.storage.AddReward(context.Background(), &r))
	return r
}

func (c *cafe) addOption(t *testing.T, rewardID uint, name string, rewardType dbconnector.RewardType, value string, weight float64) dbconnector.SpinnerOption {
	t.Helper()
	o := dbconnector.SpinnerOption{RewardID: rewardID, Name: name, RewardType: rewardType, Probability: weight, IsActive: true}
	if value != "" {
		o.Value = decimal.NewNullDecimal(decimal.RequireFromString(value))
	}
	require.NoError(t, c.storage.AddSpinnerOption(context.Background(), &o))
	return o
}

func (c *cafe) addUser(t *testing.T, visits int) dbconnector.User {
	t.Helper()
	c.users++
	phone := fmt.Sprintf("+9230012345%02d", c.users)
	u := dbconnector.User{Name: "Ayesha", PhoneNumber: &phone, VisitCount: visits}
	require.NoError(t, c.storage.AddUser(context.Background(), &u))
	return u
}
