package main

import (
	"fmt"
	"net/http"

	"github.com/go-chi/render"
	"github.com/karlmdavis/gorover/rover"
)

//---
// Drive payloads
//
// Payload validation happens here at the transport boundary so a bad request
// never reaches the drivetrain.
//---

type ModePayload struct {
	Mode string `json:"mode"`

	mode rover.DriveMode
}

func (p *ModePayload) Bind(r *http.Request) (err error) {
	p.mode, err = rover.ParseDriveMode(p.Mode)
	return
}

type SpeedPayload struct {
	Speed int `json:"speed"`
}

func (p *SpeedPayload) Bind(r *http.Request) error {
	return nil
}

type DirectionPayload struct {
	Direction int `json:"direction"`
}

func (p *DirectionPayload) Bind(r *http.Request) error {
	return nil
}

type NudgePayload struct {
	Direction string `json:"direction"`

	mode rover.DriveMode
}

func (p *NudgePayload) Bind(r *http.Request) (err error) {
	if p.mode, err = rover.ParseDriveMode(p.Direction); err != nil {
		return
	}
	if p.mode == rover.Stopped {
		err = fmt.Errorf("unable to nudge '%s': want forward or backward", p.Direction)
	}
	return
}

type PivotPayload struct {
	Direction string `json:"direction"`
}

func (p *PivotPayload) Bind(r *http.Request) error {
	if p.Direction != "left" && p.Direction != "right" {
		return fmt.Errorf("unable to pivot '%s': want left or right", p.Direction)
	}
	return nil
}

//---
// Views
//---

// renderDriveResult answers a rover call: the fresh status on success, a
// conflict while the autopilot owns the wheels, a server error when the
// hardware refused.
func renderDriveResult(w http.ResponseWriter, r *http.Request, err error) {
	switch err {
	case nil:
		render.JSON(w, r, ENV.Rover.Status())
	case rover.ErrBusy, rover.ErrNotDriving:
		render.Render(w, r, ErrConflict(err))
	default:
		render.Render(w, r, ErrRender(err))
	}
}

func PostDriveMode(w http.ResponseWriter, r *http.Request) {
	data := new(ModePayload)
	if err := render.Bind(r, data); err != nil {
		render.Render(w, r, ErrInvalidRequest(err))
		return
	}
	renderDriveResult(w, r, ENV.Rover.SetMode(data.mode))
}

func PostDriveSpeed(w http.ResponseWriter, r *http.Request) {
	data := new(SpeedPayload)
	if err := render.Bind(r, data); err != nil {
		render.Render(w, r, ErrInvalidRequest(err))
		return
	}
	renderDriveResult(w, r, ENV.Rover.SetSpeed(data.Speed))
}

func PostDriveDirection(w http.ResponseWriter, r *http.Request) {
	data := new(DirectionPayload)
	if err := render.Bind(r, data); err != nil {
		render.Render(w, r, ErrInvalidRequest(err))
		return
	}
	renderDriveResult(w, r, ENV.Rover.SetTurnBias(data.Direction))
}

func PostDriveNudge(w http.ResponseWriter, r *http.Request) {
	data := new(NudgePayload)
	if err := render.Bind(r, data); err != nil {
		render.Render(w, r, ErrInvalidRequest(err))
		return
	}
	renderDriveResult(w, r, ENV.Rover.Nudge(data.mode))
}

func PostDrivePivot(w http.ResponseWriter, r *http.Request) {
	data := new(PivotPayload)
	if err := render.Bind(r, data); err != nil {
		render.Render(w, r, ErrInvalidRequest(err))
		return
	}
	renderDriveResult(w, r, ENV.Rover.Pivot(data.Direction))
}

func PostAutopilotStart(w http.ResponseWriter, r *http.Request) {
	renderDriveResult(w, r, ENV.Rover.StartAuto())
}

func PostAutopilotStop(w http.ResponseWriter, r *http.Request) {
	renderDriveResult(w, r, ENV.Rover.StopAuto())
}

func GetStatus(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, ENV.Rover.Status())
}
