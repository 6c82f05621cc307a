// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package bus

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSubscribePublishDeliversToAllListeners(t *testing.T) {
	b := New()
	var received1, received2 []Event
	b.Subscribe(func(e Event) { received1 = append(received1, e) })
	b.Subscribe(func(e Event) { received2 = append(received2, e) })

	b.Publish(Event{Kind: KindSnapshot, WorktreeID: "wt-1"})

	require.Len(t, received1, 1)
	require.Len(t, received2, 1)
	require.Equal(t, KindSnapshot, received1[0].Kind)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := New()
	var count int
	unsub := b.Subscribe(func(e Event) { count++ })
	b.Publish(Event{Kind: KindRunStatus})
	require.Equal(t, 1, count)

	unsub()
	b.Publish(Event{Kind: KindRunStatus})
	require.Equal(t, 1, count)
}

func TestSubscriberCountReflectsActiveListeners(t *testing.T) {
	b := New()
	require.Equal(t, 0, b.SubscriberCount())

	unsub1 := b.Subscribe(func(Event) {})
	b.Subscribe(func(Event) {})
	require.Equal(t, 2, b.SubscriberCount())

	unsub1()
	require.Equal(t, 1, b.SubscriberCount())
}

func TestPublishDeliveryIsFIFOPerPublisher(t *testing.T) {
	b := New()
	var mu sync.Mutex
	var order []string
	b.Subscribe(func(e Event) {
		mu.Lock()
		order = append(order, e.Payload.(string))
		mu.Unlock()
	})

	b.Publish(Event{Payload: "first"})
	b.Publish(Event{Payload: "second"})
	b.Publish(Event{Payload: "third"})

	require.Equal(t, []string{"first", "second", "third"}, order)
}

func TestPublishWithNoSubscribersIsNoop(t *testing.T) {
	b := New()
	require.NotPanics(t, func() { b.Publish(Event{Kind: KindSnapshot}) })
}
