// Package therm defines the shared vocabulary of the thermal simulation:
// the temperature state vector, heat generation and history records,
// cooling commands, safety limits, and the error taxonomy used across
// every component.
//
//   - [State]: per-zone temperature field with a simulation timestamp
//   - [Generation]: heat generation produced for one step
//   - [Command]: actuator setpoint issued by the controller
//   - [Record]: one complete history tuple for a finished step
//
// Components never share mutable state: a State is owned by the model,
// records are immutable once appended.
package therm
