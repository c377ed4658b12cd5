package icd

import (
	"github.com/gogpu/clon12/core"
)

// CreateUserEvent implements clCreateUserEvent: a task with no queue and no
// recorder, starting in Submitted, driven to Complete/Error only by
// SetUserEventStatus (spec.md §4.1).
func (rt *Runtime) CreateUserEvent(ctxID core.ContextID) (core.TaskID, error) {
	if _, err := rt.Platform.Hub().Contexts().Get(ctxID); err != nil {
		return core.TaskID{}, err
	}
	task := core.NewTask(core.TaskUserEvent, nil)
	id := rt.Platform.Hub().Tasks().Register(task)
	task.SetID(id)
	return id, nil
}

// SetUserEventStatus implements clSetUserEventStatus.
func (rt *Runtime) SetUserEventStatus(id core.TaskID, status int32) error {
	task, err := rt.Platform.Hub().Tasks().Get(id)
	if err != nil {
		return err
	}
	return task.SetUserEventStatus(status)
}

// RetainEvent implements clRetainEvent.
func (rt *Runtime) RetainEvent(id core.TaskID) error {
	task, err := rt.Platform.Hub().Tasks().Get(id)
	if err != nil {
		return err
	}
	task.Retain()
	return nil
}

// ReleaseEvent implements clReleaseEvent.
func (rt *Runtime) ReleaseEvent(id core.TaskID) error {
	task, err := rt.Platform.Hub().Tasks().Get(id)
	if err != nil {
		return err
	}
	if task.Release() {
		_, _ = rt.Platform.Hub().Tasks().Unregister(id)
	}
	return nil
}

// WaitForEvents implements clWaitForEvents: blocks until every task in ids
// reaches Complete or Error, returning the first error encountered.
func (rt *Runtime) WaitForEvents(ids []core.TaskID) error {
	tasks, err := rt.resolveWaitList(ids)
	if err != nil {
		return err
	}
	for _, t := range tasks {
		<-t.Done()
	}
	for _, t := range tasks {
		if err := t.Err(); err != nil {
			return err
		}
	}
	return nil
}

// EventCallbackStatus mirrors the command_exec_callback_type status a
// callback registers for: CL_SUBMITTED, CL_RUNNING, or CL_COMPLETE (negative
// values for CL_COMPLETE-with-error are delivered to the same callback).
type EventCallbackStatus int

const (
	CallbackOnSubmitted EventCallbackStatus = iota
	CallbackOnRunning
	CallbackOnComplete
)

// SetEventCallback implements clSetEventCallback, registering cb against
// the task's Submitted/Running/Complete callback list per status.
func (rt *Runtime) SetEventCallback(id core.TaskID, status EventCallbackStatus, cb core.TaskCallback) error {
	task, err := rt.Platform.Hub().Tasks().Get(id)
	if err != nil {
		return err
	}
	switch status {
	case CallbackOnSubmitted:
		task.OnSubmitted(cb)
	case CallbackOnRunning:
		task.OnRunning(cb)
	default:
		task.OnComplete(cb)
	}
	return nil
}

// EventInfo is clGetEventInfo's result set.
type EventInfo struct {
	State core.TaskState
	Err   error
}

// GetEventInfo implements clGetEventInfo.
func (rt *Runtime) GetEventInfo(id core.TaskID) (EventInfo, error) {
	task, err := rt.Platform.Hub().Tasks().Get(id)
	if err != nil {
		return EventInfo{}, err
	}
	return EventInfo{State: task.State(), Err: task.Err()}, nil
}
