// Package taskmap combines the extracted application declaration and the
// symbol resolver into the immutable HardwareTaskMap/SoftwareTaskMap pair
// the rest of the pipeline runs against.
package taskmap

import (
	"context"
	"fmt"

	"github.com/tracescope/tracescope/pkg/astextract"
	"github.com/tracescope/tracescope/pkg/safeconv"
	"github.com/tracescope/tracescope/pkg/symresolve"
	"github.com/tracescope/tracescope/pkg/tracemodel"
	"github.com/tracescope/tracescope/pkg/tracerr"
)

// maxSoftwareTaskID is the software task-ID ceiling: IDs are assigned
// monotonically starting at 0 and must never exceed this, matching the
// embedded instrumentation macro's own counter.
const maxSoftwareTaskID = safeconv.MaxUint8

// Binding is one `#[task(binds = X)]` declaration recovered from the
// application body.
type Binding struct {
	InterruptName string
	TaskName      tracemodel.TaskIdentity
}

// Build combines the application declaration's bindings, dispatcher
// names, and traced functions with a Resolver to produce the pipeline's
// immutable task maps.
func Build(
	ctx context.Context,
	resolver *symresolve.Resolver,
	resolveReq symresolve.Request,
	bindings []Binding,
	dispatcherNames []string,
	traced []tracemodel.TaskIdentity,
	dwtEnterID, dwtExitID uint8,
) (tracemodel.HardwareTaskMap, tracemodel.SoftwareTaskMap, error) {
	hardware, deviceNames := partitionBindings(bindings)

	names := dedupNames(append(append([]string{}, deviceNames...), dispatcherNames...))

	resolveReq.Names = names

	resolved, err := resolver.Resolve(ctx, resolveReq)
	if err != nil {
		return nil, tracemodel.SoftwareTaskMap{}, tracerr.Wrap(tracerr.Recovery, "resolve interrupt numbers", err)
	}

	for _, b := range bindings {
		if _, isCore := tracemodel.CoreExceptionByName(b.InterruptName); isCore {
			continue
		}

		source, ok := resolved[b.InterruptName]
		if !ok {
			return nil, tracemodel.SoftwareTaskMap{}, tracerr.RecoveryError(
				fmt.Sprintf("no resolved interrupt number for %s", b.InterruptName), nil)
		}

		hardware[source] = b.TaskName
	}

	software := tracemodel.NewSoftwareTaskMap()

	for _, name := range dispatcherNames {
		source, ok := resolved[name]
		if !ok {
			return nil, tracemodel.SoftwareTaskMap{}, tracerr.RecoveryError(
				fmt.Sprintf("no resolved interrupt number for dispatcher %s", name), nil)
		}

		software.Dispatchers[source] = struct{}{}
	}

	software.Comparators[dwtEnterID] = tracemodel.ActionEntered
	software.Comparators[dwtExitID] = tracemodel.ActionExited

	for id, name := range traced {
		if id > maxSoftwareTaskID {
			return nil, tracemodel.SoftwareTaskMap{}, tracerr.RecoveryError(
				fmt.Sprintf("software task id %d exceeds maximum of %d", id, maxSoftwareTaskID), nil)
		}

		software.Tasks[safeconv.MustIntToUint8(id)] = name
	}

	return hardware, software, nil
}

// partitionBindings splits bindings into core-exception hardware entries
// (resolved directly, no symbol resolution needed) and the remaining
// device-interrupt names that still need resolving.
func partitionBindings(bindings []Binding) (tracemodel.HardwareTaskMap, []string) {
	hardware := make(tracemodel.HardwareTaskMap, len(bindings))

	var deviceNames []string

	for _, b := range bindings {
		if core, ok := tracemodel.CoreExceptionByName(b.InterruptName); ok {
			hardware[tracemodel.CoreExceptionSource(core)] = b.TaskName

			continue
		}

		deviceNames = append(deviceNames, b.InterruptName)
	}

	return hardware, deviceNames
}

func dedupNames(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))

	for _, n := range names {
		if _, ok := seen[n]; ok {
			continue
		}

		seen[n] = struct{}{}
		out = append(out, n)
	}

	return out
}

// contextStack tracks the mod/fn nesting path while walking the
// application body, pushing on entry and popping on exit.
type contextStack struct {
	segments []string
}

func (s *contextStack) push(name string) {
	s.segments = append(s.segments, name)
}

func (s *contextStack) pop() {
	if len(s.segments) > 0 {
		s.segments = s.segments[:len(s.segments)-1]
	}
}

func (s *contextStack) identity() (tracemodel.TaskIdentity, error) {
	return tracemodel.NewTaskIdentity(s.segments...)
}

// WalkTraced walks decl's body looking for `fn` and `mod` items, pushing
// the current identifier onto a context stack on entry and popping it on
// exit, and recording a task identity — in encounter order, which is the
// order traced IDs are assigned in — whenever a function carries the
// tracing attribute. Callers pass the resulting slice's index as the
// task ID to Build.
func WalkTraced(decl astextract.Declaration) ([]tracemodel.TaskIdentity, error) {
	items, err := decl.Walk()
	if err != nil {
		return nil, tracerr.Wrap(tracerr.Recovery, "walk application body for traced tasks", err)
	}

	stack := &contextStack{segments: []string{decl.ModuleName}}

	var traced []tracemodel.TaskIdentity

	collectTraced(items, stack, &traced)

	return traced, nil
}

func collectTraced(items []astextract.Item, stack *contextStack, traced *[]tracemodel.TaskIdentity) {
	for _, item := range items {
		stack.push(item.Name)

		if item.IsFn {
			if item.Traced {
				if identity, err := stack.identity(); err == nil {
					*traced = append(*traced, identity)
				}
			}
		} else {
			collectTraced(item.Children, stack, traced)
		}

		stack.pop()
	}
}

// WalkBindings walks decl's body the same way WalkTraced does, collecting
// a Binding for every `#[task(binds = X)]` function encountered.
func WalkBindings(decl astextract.Declaration) ([]Binding, error) {
	items, err := decl.Walk()
	if err != nil {
		return nil, tracerr.Wrap(tracerr.Recovery, "walk application body for task bindings", err)
	}

	stack := &contextStack{segments: []string{decl.ModuleName}}

	var bindings []Binding

	collectBindings(items, stack, &bindings)

	return bindings, nil
}

func collectBindings(items []astextract.Item, stack *contextStack, bindings *[]Binding) {
	for _, item := range items {
		stack.push(item.Name)

		if item.IsFn {
			if item.Binds != "" {
				if identity, err := stack.identity(); err == nil {
					*bindings = append(*bindings, Binding{InterruptName: item.Binds, TaskName: identity})
				}
			}
		} else {
			collectBindings(item.Children, stack, bindings)
		}

		stack.pop()
	}
}
