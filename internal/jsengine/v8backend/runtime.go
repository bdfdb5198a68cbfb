//go:build v8

// Package v8backend implements jsengine.Runtime on top of V8 via
// tommie/v8go, adapted from the teacher's internal/v8engine/runtime.go:
// the same reflect-based RegisterFunc marshaling, the same
// (T, error)-throws-TypeError convention, and the same
// PerformMicrotaskCheckpoint-based RunMicrotasks.
package v8backend

import (
	"fmt"
	"reflect"

	v8 "github.com/tommie/v8go"
)

type runtime struct {
	iso *v8.Isolate
	ctx *v8.Context
}

// New creates a fresh isolate and context, independent of every other
// worker's — engine contexts are never shared across threads (§5).
//
// The return type is the concrete *runtime, not jsengine.Runtime: this
// package is imported by jsengine's build-tagged selector file, so
// importing jsengine back here would create an import cycle. *runtime
// still satisfies jsengine.Runtime structurally.
func New() (*runtime, error) {
	iso := v8.NewIsolate()
	ctx := v8.NewContext(iso)
	return &runtime{iso: iso, ctx: ctx}, nil
}

func (r *runtime) Eval(src string) error {
	_, err := r.ctx.RunScript(src, "worker.js")
	return err
}

func (r *runtime) EvalBool(src string) (bool, error) {
	v, err := r.ctx.RunScript(src, "worker.js")
	if err != nil {
		return false, err
	}
	return v.Boolean(), nil
}

func (r *runtime) RegisterFunc(name string, fn any) error {
	fv := reflect.ValueOf(fn)
	if fv.Kind() != reflect.Func {
		return fmt.Errorf("jsengine: RegisterFunc(%q): not a function", name)
	}
	ft := v8.NewFunctionTemplate(r.iso, func(info *v8.FunctionCallbackInfo) *v8.Value {
		args, err := jsArgsToGo(fv.Type(), info.Args())
		if err != nil {
			return throwTypeError(r.ctx, err)
		}
		results := fv.Call(args)
		val, err := goResultsToJS(r.ctx, results)
		if err != nil {
			return throwTypeError(r.ctx, err)
		}
		return val
	})
	fn2 := ft.GetFunction(r.ctx)
	return r.ctx.Global().Set(name, fn2)
}

func (r *runtime) SetGlobal(name string, value any) error {
	jv, err := goToJSValue(r.ctx, value)
	if err != nil {
		return err
	}
	return r.ctx.Global().Set(name, jv)
}

func (r *runtime) RunMicrotasks() {
	r.iso.PerformMicrotaskCheckpoint()
}

func (r *runtime) Dispose() {
	r.ctx.Close()
	r.iso.Dispose()
}

func throwTypeError(ctx *v8.Context, err error) *v8.Value {
	v, _ := v8.NewValue(ctx.Isolate(), err.Error())
	return ctx.Isolate().ThrowException(v)
}

func jsArgsToGo(fnType reflect.Type, args []*v8.Value) ([]reflect.Value, error) {
	if fnType.NumIn() != len(args) {
		return nil, fmt.Errorf("jsengine: expected %d arguments, got %d", fnType.NumIn(), len(args))
	}
	out := make([]reflect.Value, len(args))
	for i, a := range args {
		pt := fnType.In(i)
		switch pt.Kind() {
		case reflect.String:
			out[i] = reflect.ValueOf(a.String()).Convert(pt)
		case reflect.Uint64, reflect.Uint, reflect.Uint32:
			out[i] = reflect.ValueOf(uint64(a.Integer())).Convert(pt)
		case reflect.Int64, reflect.Int, reflect.Int32:
			out[i] = reflect.ValueOf(a.Integer()).Convert(pt)
		case reflect.Bool:
			out[i] = reflect.ValueOf(a.Boolean()).Convert(pt)
		default:
			return nil, fmt.Errorf("jsengine: unsupported argument type %s", pt)
		}
	}
	return out, nil
}

func goResultsToJS(ctx *v8.Context, results []reflect.Value) (*v8.Value, error) {
	if len(results) == 0 {
		return v8.Undefined(ctx.Isolate()), nil
	}
	last := results[len(results)-1]
	if last.Type().Implements(reflect.TypeOf((*error)(nil)).Elem()) {
		if !last.IsNil() {
			return nil, last.Interface().(error)
		}
		results = results[:len(results)-1]
	}
	if len(results) == 0 {
		return v8.Undefined(ctx.Isolate()), nil
	}
	return goToJSValue(ctx, results[0].Interface())
}

func goToJSValue(ctx *v8.Context, value any) (*v8.Value, error) {
	switch v := value.(type) {
	case nil:
		return v8.Undefined(ctx.Isolate()), nil
	case string, bool, int32, uint32, int64, uint64, float64:
		return v8.NewValue(ctx.Isolate(), v)
	case uint:
		return v8.NewValue(ctx.Isolate(), uint64(v))
	case int:
		return v8.NewValue(ctx.Isolate(), int64(v))
	default:
		return nil, fmt.Errorf("jsengine: unsupported value type %T", value)
	}
}
