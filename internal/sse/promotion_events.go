package sse

import (
	"context"
	"sync"

	"ms-promotion/internal/models"
)

// PromotionEventEmitter fans promotion status changes out to SSE clients watching an event.
type PromotionEventEmitter struct {
	// key: eventID, value: client channels
	clients map[string][]chan models.PromotionStatusUpdate
	mu      sync.RWMutex
}

func NewPromotionEventEmitter() *PromotionEventEmitter {
	return &PromotionEventEmitter{
		clients: make(map[string][]chan models.PromotionStatusUpdate),
	}
}

// Subscribe registers a client for eventID. The channel is closed once ctx is done.
func (e *PromotionEventEmitter) Subscribe(ctx context.Context, eventID string) <-chan models.PromotionStatusUpdate {
	clientChan := make(chan models.PromotionStatusUpdate, 10)

	e.mu.Lock()
	e.clients[eventID] = append(e.clients[eventID], clientChan)
	e.mu.Unlock()

	go func() {
		<-ctx.Done()
		e.removeClient(eventID, clientChan)
	}()

	return clientChan
}

// Broadcast sends update to every subscriber of its event. Slow clients miss updates rather
// than block the caller.
func (e *PromotionEventEmitter) Broadcast(update models.PromotionStatusUpdate) {
	// the read lock also keeps removeClient from closing a channel mid-send
	e.mu.RLock()
	defer e.mu.RUnlock()

	for _, clientChan := range e.clients[update.EventID] {
		select {
		case clientChan <- update:
		default:
		}
	}
}

func (e *PromotionEventEmitter) removeClient(eventID string, clientChan chan models.PromotionStatusUpdate) {
	e.mu.Lock()
	defer e.mu.Unlock()

	clients := e.clients[eventID]
	for i, ch := range clients {
		if ch == clientChan {
			e.clients[eventID] = append(clients[:i], clients[i+1:]...)
			close(clientChan)
			break
		}
	}

	if len(e.clients[eventID]) == 0 {
		delete(e.clients, eventID)
	}
}

// ClientCount returns the number of clients currently subscribed to an event
func (e *PromotionEventEmitter) ClientCount(eventID string) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.clients[eventID])
}
