package server

import (
	"bufio"
	"encoding/json"
	"fmt"

	"github.com/biodoia/gocouncil/internal/council"
	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog/log"
)

// streamEvents consegna gli eventi di progresso come Server-Sent Events.
// Una scrittura o flush falliti indicano un client disconnesso: lo stream
// viene drenato fino alla chiusura, così la goroutine della pipeline non
// resta mai bloccata su un consumer assente. Il round prosegue e viene
// persistito comunque: la disconnessione degrada solo la visibilità.
func streamEvents(c fiber.Ctx, events <-chan council.Event) error {
	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	return c.SendStreamWriter(func(w *bufio.Writer) {
		for ev := range events {
			payload, err := json.Marshal(ev)
			if err != nil {
				log.Error().Err(err).Str("event", string(ev.Type)).Msg("Failed to encode progress event")
				continue
			}

			if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
				drain(events)
				return
			}
			if err := w.Flush(); err != nil {
				drain(events)
				return
			}
		}
	})
}

// drain consuma lo stream fino alla chiusura da parte del produttore
func drain(events <-chan council.Event) {
	for range events {
	}
}
