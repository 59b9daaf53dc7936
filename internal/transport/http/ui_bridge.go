package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"medquiz-challenge/internal/engine"
)

// Player is the part of engine.Machine a renderer needs.
type Player interface {
	Subscribe() (<-chan engine.State, func())
	Answer(selected string)
}

// UIBridge streams engine state to a local browser renderer and feeds answers back.
// Coordination with other participants still goes through the polled REST backend.
type UIBridge struct {
	player   Player
	upgrader websocket.Upgrader
}

func NewUIBridge(player Player) *UIBridge {
	return &UIBridge{
		player: player,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type answerPayload struct {
	Answer string `json:"answer"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type messagePayload struct {
	Message string `json:"message"`
}

// ServeWS upgrades the request and runs the bridge until either side goes away.
func (b *UIBridge) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("ws upgrade failed")
		return
	}
	defer conn.Close()

	states, cancel := b.player.Subscribe()
	defer cancel()

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	statesDone := make(chan struct{})

	// Single writer; gorilla connections allow one concurrent writer.
	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Debug().Err(err).Msg("ws write failed")
				return
			}
		}
	}()

	go func() {
		defer close(statesDone)
		for {
			select {
			case state, ok := <-states:
				if !ok {
					// Game over: ask the renderer to hang up so the read loop ends.
					deadline := time.Now().Add(time.Second)
					_ = conn.WriteControl(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseNormalClosure, "game over"), deadline)
					return
				}
				select {
				case send <- outboundMessage[any]{Type: "state", Payload: state}:
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "answer":
			var payload answerPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil || payload.Answer == "" {
				b.reply(send, closeSignals, "error", "invalid answer payload")
				continue
			}
			b.player.Answer(payload.Answer)
		default:
			b.reply(send, closeSignals, "error", "unsupported message type")
		}
	}

	close(closeSignals)
	<-statesDone
	close(send)
	<-writerDone
}

func (b *UIBridge) reply(send chan<- outboundMessage[any], closed <-chan struct{}, typ, msg string) {
	select {
	case send <- outboundMessage[any]{Type: typ, Payload: messagePayload{Message: msg}}:
	case <-closed:
	}
}
