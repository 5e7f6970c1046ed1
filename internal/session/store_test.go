package session

import (
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockpile-dev/stockpile/internal/models"
)

func TestNew_StartsLoadingWithoutCredential(t *testing.T) {
	s := New()

	snap := s.Snapshot()
	assert.True(t, snap.IsLoading)
	assert.Empty(t, snap.AccessToken)
	assert.Nil(t, snap.User)
	assert.False(t, snap.Authenticated())
}

func TestFinishLoading_OnlyOnce(t *testing.T) {
	s := New()

	var transitions int
	s.Subscribe(func(snap Snapshot) {
		if !snap.IsLoading {
			transitions++
		}
	})

	s.FinishLoading()
	s.FinishLoading()
	s.Set("token-a")
	s.Clear()
	s.FinishLoading()

	assert.False(t, s.Snapshot().IsLoading)
	// one notification from FinishLoading, one from Set, one from Clear;
	// the repeated FinishLoading calls are not mutations
	assert.Equal(t, 3, transitions)
}

func TestSnapshot_IdempotentWithoutMutation(t *testing.T) {
	s := New()
	s.Set("token-a")
	s.FinishLoading()

	assert.Equal(t, s.Snapshot(), s.Snapshot())
}

func TestSet_NotifiesAndBumpsVersion(t *testing.T) {
	s := New()

	var seen []Snapshot
	s.Subscribe(func(snap Snapshot) { seen = append(seen, snap) })

	s.Set("token-a")
	s.Set("token-a") // unchanged, no notification
	s.Set("token-b")

	require.Len(t, seen, 2)
	assert.Equal(t, "token-a", seen[0].AccessToken)
	assert.Equal(t, "token-b", seen[1].AccessToken)
	assert.Less(t, seen[0].Version, seen[1].Version)
	// the mutation is visible to readers before Set returns
	assert.Equal(t, "token-b", s.Token())
}

func TestSet_RotationKeepsUser(t *testing.T) {
	s := New()
	s.Set("token-a")
	require.True(t, s.SetUser("token-a", &models.User{ID: 1, Email: "a@b.com"}))

	s.Set("token-b")

	require.NotNil(t, s.Snapshot().User)
	assert.Equal(t, "a@b.com", s.Snapshot().User.Email)
}

func TestSet_EmptyTokenClears(t *testing.T) {
	s := New()
	s.Set("token-a")
	s.Set("")

	assert.Empty(t, s.Token())
}

func TestSetUser_RequiresCurrentToken(t *testing.T) {
	s := New()

	// no credential held
	assert.False(t, s.SetUser("token-a", &models.User{ID: 1}))
	assert.Nil(t, s.Snapshot().User)

	s.Set("token-b")
	// profile fetched with a credential that is no longer current
	assert.False(t, s.SetUser("token-a", &models.User{ID: 1}))
	assert.Nil(t, s.Snapshot().User)

	assert.True(t, s.SetUser("token-b", &models.User{ID: 2}))
	assert.Equal(t, 2, s.Snapshot().User.ID)
}

func TestClear_RemovesTokenAndUser(t *testing.T) {
	s := New()
	s.FinishLoading()
	s.Set("token-a")
	s.SetUser("token-a", &models.User{ID: 1})

	s.Clear()

	snap := s.Snapshot()
	assert.Empty(t, snap.AccessToken)
	assert.Nil(t, snap.User)
	assert.False(t, snap.IsLoading)
}

func TestClearIfCurrent_Freshness(t *testing.T) {
	s := New()
	s.Set("old")
	s.Set("new")

	// a rejection of a request stamped with the old credential
	assert.False(t, s.ClearIfCurrent("old"))
	assert.Equal(t, "new", s.Token())

	// an empty credential never matches
	assert.False(t, s.ClearIfCurrent(""))

	assert.True(t, s.ClearIfCurrent("new"))
	assert.Empty(t, s.Token())

	// idempotent
	assert.False(t, s.ClearIfCurrent("new"))
}

func TestSubscribe_Unsubscribe(t *testing.T) {
	s := New()

	var calls int
	unsubscribe := s.Subscribe(func(Snapshot) { calls++ })

	s.Set("token-a")
	unsubscribe()
	s.Set("token-b")

	assert.Equal(t, 1, calls)
}

func TestStore_ConcurrentWritersOrderedNotifications(t *testing.T) {
	s := New()

	var mu sync.Mutex
	var versions []uint64
	s.Subscribe(func(snap Snapshot) {
		mu.Lock()
		versions = append(versions, snap.Version)
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				s.Set("token-" + string(rune('a'+i%26)))
			} else {
				s.Clear()
			}
			_ = s.Snapshot()
		}(i)
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	for i := 1; i < len(versions); i++ {
		assert.Equal(t, versions[i-1]+1, versions[i], "notifications out of commit order")
	}
}

func TestExpiresAt(t *testing.T) {
	exp := time.Now().Add(5 * time.Minute).Truncate(time.Second)
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp":     exp.Unix(),
		"user_id": 1,
	}).SignedString([]byte("secret"))
	require.NoError(t, err)

	got, ok := ExpiresAt(token)
	require.True(t, ok)
	assert.True(t, got.Equal(exp))

	_, ok = ExpiresAt("opaque-token")
	assert.False(t, ok)

	_, ok = ExpiresAt("")
	assert.False(t, ok)

	snap := Snapshot{AccessToken: token}
	got, ok = snap.ExpiresAt()
	require.True(t, ok)
	assert.True(t, got.Equal(exp))
}
