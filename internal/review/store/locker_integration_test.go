//go:build integration

package store_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"worksign/internal/review/store"
	"worksign/pkg/testutil/containers"
)

type RedisLockerSuite struct {
	suite.Suite

	redis  *containers.RedisContainer
	locker *store.RedisLocker
}

func TestRedisLockerSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisLockerSuite))
}

func (s *RedisLockerSuite) SetupSuite() {
	s.redis = containers.GetManager().GetRedis(s.T())
	s.locker = store.NewRedisLocker(s.redis.Client)
}

func (s *RedisLockerSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *RedisLockerSuite) TestMutualExclusion() {
	ctx := context.Background()
	const goroutines = 16

	inFlight := 0
	maxInFlight := 0
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := s.locker.Acquire(ctx, "same-jti")
			if err != nil {
				return
			}
			defer release()

			mu.Lock()
			inFlight++
			if inFlight > maxInFlight {
				maxInFlight = inFlight
			}
			mu.Unlock()

			time.Sleep(5 * time.Millisecond)

			mu.Lock()
			inFlight--
			mu.Unlock()
		}()
	}
	wg.Wait()

	s.Equal(1, maxInFlight)
}

func (s *RedisLockerSuite) TestIndependentKeysDoNotBlock() {
	ctx := context.Background()

	releaseA, err := s.locker.Acquire(ctx, "jti-a")
	s.Require().NoError(err)
	defer releaseA()

	done := make(chan struct{})
	go func() {
		releaseB, err := s.locker.Acquire(ctx, "jti-b")
		if err == nil {
			releaseB()
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		s.Fail("independent key acquisition blocked")
	}
}

func (s *RedisLockerSuite) TestAcquireRespectsContext() {
	ctx := context.Background()
	release, err := s.locker.Acquire(ctx, "held")
	s.Require().NoError(err)
	defer release()

	waitCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()
	_, err = s.locker.Acquire(waitCtx, "held")
	s.ErrorIs(err, context.DeadlineExceeded)
}
