package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/karlmdavis/gorover/rover"
)

// TELEMETRY_INTERVAL paces the state broadcast to connected remotes.
const TELEMETRY_INTERVAL = time.Second / 10

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Cmd is one remote control instruction from a websocket client. Name carries
// the word arguments (modes, pivot directions), Value the numeric ones.
type Cmd struct {
	Cmd   string  `json:"cmd"`
	Name  string  `json:"name,omitempty"`
	Value float64 `json:"value,omitempty"`
}

// Conductor fans rover state out to every connected websocket remote and
// feeds their commands into the pilot. The broadcast loop is the only writer
// on the connections so clients never see interleaved frames.
type Conductor struct {
	Device rover.Rover

	lock    sync.Mutex
	clients map[*websocket.Conn]bool
}

func NewConductor(device rover.Rover) *Conductor {
	return &Conductor{
		Device:  device,
		clients: make(map[*websocket.Conn]bool),
	}
}

func (c *Conductor) Subscribe(conn *websocket.Conn) {
	c.lock.Lock()
	c.clients[conn] = true
	c.lock.Unlock()
}

func (c *Conductor) Unsubscribe(conn *websocket.Conn) {
	c.lock.Lock()
	delete(c.clients, conn)
	c.lock.Unlock()
}

func (c *Conductor) snapshot() (conns []*websocket.Conn) {
	c.lock.Lock()
	defer c.lock.Unlock()
	conns = make([]*websocket.Conn, 0, len(c.clients))
	for conn := range c.clients {
		conns = append(conns, conn)
	}
	return
}

// UpdateClients pushes the pilot state to every connected client at a fixed
// frame rate. Run once, from main.
func (c *Conductor) UpdateClients() {
	for {
		conns := c.snapshot()
		if len(conns) > 0 {
			msg, err := json.Marshal(c.Device.Status())
			if err != nil {
				panic(err)
			}
			for _, conn := range conns {
				if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
					c.Unsubscribe(conn)
					conn.Close()
				}
			}
		}

		time.Sleep(TELEMETRY_INTERVAL)
	}
}

// ProcessCommand applies one remote instruction to the rover. Refused or
// unknown commands are logged and dropped; the telemetry stream shows the
// client what actually happened.
func (c *Conductor) ProcessCommand(cmd Cmd) {
	var err error
	switch cmd.Cmd {
	case "mode":
		var m rover.DriveMode
		if m, err = rover.ParseDriveMode(cmd.Name); err == nil {
			err = c.Device.SetMode(m)
		}

	case "speed":
		err = c.Device.SetSpeed(int(cmd.Value))

	case "direction":
		err = c.Device.SetTurnBias(int(cmd.Value))

	case "nudge":
		var m rover.DriveMode
		if m, err = rover.ParseDriveMode(cmd.Name); err == nil {
			err = c.Device.Nudge(m)
		}

	case "pivot":
		err = c.Device.Pivot(cmd.Name)

	case "start":
		err = c.Device.StartAuto()

	case "stop":
		err = c.Device.StopAuto()

	default:
		fmt.Printf("Unable to process command %v\n", cmd)
		return
	}

	if err != nil {
		log.Printf("command %s refused: %v", cmd.Cmd, err)
	}
}

//---
// Handlers
//---

// StateHandler upgrades the connection, subscribes it to the telemetry stream
// and feeds its command frames to the conductor.
func StateHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Print("upgrade:", err)
		return
	}

	ENV.Conductor.Subscribe(conn)
	defer func() {
		ENV.Conductor.Unsubscribe(conn)
		conn.Close()
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			log.Println("read:", err)
			break
		}

		var cmd Cmd
		if err := json.Unmarshal(msg, &cmd); err != nil {
			log.Printf("unable to parse command %s: %v", msg, err)
			continue
		}

		ENV.Conductor.ProcessCommand(cmd)
	}
}

// EchoHandler bounces frames straight back. Handy for checking connectivity
// to the brick without touching the rover.
func EchoHandler(w http.ResponseWriter, r *http.Request) {
	c, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Print("upgrade:", err)
		return
	}
	defer c.Close()
	for {
		mt, message, err := c.ReadMessage()
		if err != nil {
			log.Println("read:", err)
			break
		}
		err = c.WriteMessage(mt, message)
		if err != nil {
			log.Println("write:", err)
			break
		}
	}
}
