// SPDX-License-Identifier: AGPL-3.0-or-later
// accessbroker - subscription entitlement lifecycle engine
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

package pubsub

import (
	"sync"

	"github.com/sbs-poc/accessbroker/internal/config"
)

func makeInMemoryPubSub(_ *config.Config) (PubSub, error) {
	return &inMemoryPubSub{subscribers: make(map[string]map[*inMemorySubscription]struct{})}, nil
}

// inMemoryPubSub fans a published message out to every live subscriber of
// its topic, in-process. Used whenever Redis is disabled, so the live event
// feed still works against a single replica.
type inMemoryPubSub struct {
	mu          sync.Mutex
	subscribers map[string]map[*inMemorySubscription]struct{}
}

const subscriberBuffer = 16

func (ps *inMemoryPubSub) Publish(topic string, message []byte) error {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	for sub := range ps.subscribers[topic] {
		select {
		case sub.ch <- message:
		default:
			// Slow subscriber: drop rather than block the publisher.
		}
	}
	return nil
}

func (ps *inMemoryPubSub) Subscribe(topic string) Subscription {
	sub := &inMemorySubscription{ps: ps, topic: topic, ch: make(chan []byte, subscriberBuffer)}
	ps.mu.Lock()
	if ps.subscribers[topic] == nil {
		ps.subscribers[topic] = make(map[*inMemorySubscription]struct{})
	}
	ps.subscribers[topic][sub] = struct{}{}
	ps.mu.Unlock()
	return sub
}

func (ps *inMemoryPubSub) Close() error {
	return nil
}

type inMemorySubscription struct {
	ps    *inMemoryPubSub
	topic string
	ch    chan []byte
}

func (s *inMemorySubscription) Close() error {
	s.ps.mu.Lock()
	delete(s.ps.subscribers[s.topic], s)
	s.ps.mu.Unlock()
	close(s.ch)
	return nil
}

func (s *inMemorySubscription) Channel() <-chan []byte {
	return s.ch
}
