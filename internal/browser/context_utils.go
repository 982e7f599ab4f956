package browser

import "context"

// CombineContext returns a context that carries parent's values (the chromedp
// target lives there) and is cancelled when either parent or secondary is done.
func CombineContext(parent, secondary context.Context) (context.Context, context.CancelFunc) {
	combined, cancel := context.WithCancel(parent)
	stop := context.AfterFunc(secondary, cancel)
	return combined, func() {
		stop()
		cancel()
	}
}
