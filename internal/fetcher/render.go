package fetcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/charmbracelet/log"
	"github.com/dop251/goja"
)

// Renderer executes a page's inline scripts so that tiles injected on the
// client side end up in the document. The DOM it exposes is deliberately
// small: document.getElementById, document.querySelector, document.write,
// element.innerHTML and element.insertAdjacentHTML.
type Renderer struct {
	timeout time.Duration
}

// NewRenderer creates a renderer that interrupts scripts after timeout.
func NewRenderer(timeout time.Duration) *Renderer {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Renderer{timeout: timeout}
}

// Render parses page, runs its inline scripts in order and returns the
// resulting document. A script that throws is skipped; running out of time
// fails the render.
func (r *Renderer) Render(ctx context.Context, page []byte) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return nil, fmt.Errorf("%w: parsing page: %v", ErrMalformed, err)
	}

	var scripts []string
	doc.Find("script").Each(func(_ int, s *goquery.Selection) {
		if _, external := s.Attr("src"); external {
			return
		}
		switch strings.ToLower(strings.TrimSpace(s.AttrOr("type", ""))) {
		case "", "text/javascript", "application/javascript":
			scripts = append(scripts, s.Text())
		}
	})
	if len(scripts) == 0 {
		return doc, nil
	}

	vm := goja.New()
	installDOM(vm, doc)

	timer := time.AfterFunc(r.timeout, func() {
		vm.Interrupt("render timeout")
	})
	defer timer.Stop()
	stop := context.AfterFunc(ctx, func() {
		vm.Interrupt(ctx.Err())
	})
	defer stop()

	for i, src := range scripts {
		if _, err := vm.RunString(src); err != nil {
			var interrupted *goja.InterruptedError
			if errors.As(err, &interrupted) {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return nil, ctxErr
				}
				return nil, fmt.Errorf("render interrupted after %s: %v", r.timeout, interrupted.Value())
			}
			log.Debug("Page script failed", "script", i, "err", err)
		}
	}
	return doc, nil
}

func installDOM(vm *goja.Runtime, doc *goquery.Document) {
	wrap := func(sel *goquery.Selection) goja.Value {
		if sel.Length() == 0 {
			return goja.Null()
		}
		return newElement(vm, sel.First())
	}

	document := vm.NewObject()
	document.Set("getElementById", func(id string) goja.Value {
		return wrap(doc.Find("[id]").FilterFunction(func(_ int, s *goquery.Selection) bool {
			return s.AttrOr("id", "") == id
		}))
	})
	document.Set("querySelector", func(selector string) goja.Value {
		return wrap(doc.Find(selector))
	})
	document.Set("write", func(html string) {
		doc.Find("body").AppendHtml(html)
	})
	document.Set("body", newElement(vm, doc.Find("body")))

	console := vm.NewObject()
	for _, name := range []string{"log", "info", "warn", "error", "debug"} {
		console.Set(name, func(goja.FunctionCall) goja.Value { return goja.Undefined() })
	}

	vm.Set("document", document)
	vm.Set("console", console)
	vm.Set("window", vm.GlobalObject())
}

func newElement(vm *goja.Runtime, sel *goquery.Selection) *goja.Object {
	el := vm.NewObject()
	el.Set("insertAdjacentHTML", func(call goja.FunctionCall) goja.Value {
		position := call.Argument(0).String()
		html := call.Argument(1).String()
		switch strings.ToLower(position) {
		case "beforebegin":
			sel.BeforeHtml(html)
		case "afterbegin":
			sel.PrependHtml(html)
		case "beforeend":
			sel.AppendHtml(html)
		case "afterend":
			sel.AfterHtml(html)
		default:
			panic(vm.NewTypeError("insertAdjacentHTML: invalid position %q", position))
		}
		return goja.Undefined()
	})
	el.Set("getAttribute", func(name string) goja.Value {
		if v, ok := sel.Attr(name); ok {
			return vm.ToValue(v)
		}
		return goja.Null()
	})
	el.Set("setAttribute", func(name, value string) {
		sel.SetAttr(name, value)
	})
	el.DefineAccessorProperty("innerHTML",
		vm.ToValue(func(goja.FunctionCall) goja.Value {
			html, _ := sel.Html()
			return vm.ToValue(html)
		}),
		vm.ToValue(func(call goja.FunctionCall) goja.Value {
			sel.SetHtml(call.Argument(0).String())
			return goja.Undefined()
		}),
		goja.FLAG_TRUE, goja.FLAG_TRUE)
	el.DefineAccessorProperty("textContent",
		vm.ToValue(func(goja.FunctionCall) goja.Value {
			return vm.ToValue(sel.Text())
		}),
		vm.ToValue(func(call goja.FunctionCall) goja.Value {
			sel.SetText(call.Argument(0).String())
			return goja.Undefined()
		}),
		goja.FLAG_TRUE, goja.FLAG_TRUE)
	return el
}
