package backend

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/huin/goupnp"
	"github.com/huin/goupnp/soap"
	log "github.com/sirupsen/logrus"
)

const (
	avTransport      = "AVTransport"
	renderingControl = "RenderingControl"
)

// UPnP drives any UPnP/DLNA MediaRenderer (a Sonos zone, a networked
// amplifier) through its AVTransport and RenderingControl services.
type UPnP struct {
	name     string
	timeout  time.Duration
	control  *service
	renderer *service

	mu sync.Mutex
	// pending is non-nil while a timed-out action is still in flight.
	pending chan struct{}
}

// NewUPnP discovers MediaRenderer devices on the network and picks the
// one with the given friendly name, or the first found when name is
// empty.
func NewUPnP(ctx context.Context, name string, timeout time.Duration) (*UPnP, error) {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	devices, err := goupnp.DiscoverDevicesCtx(ctx, "urn:schemas-upnp-org:device:MediaRenderer:1")
	if err != nil {
		return nil, fmt.Errorf("discover renderers: %w", err)
	}
	log.Debugf("Inspecting %v renderer devices", len(devices))

	for _, dev := range devices {
		root, err := goupnp.DeviceByURLCtx(ctx, dev.Location)
		if err != nil {
			log.Warnf("Could not retrieve %v, renderer went away?", dev.Location)
			continue
		}
		friendly := root.Device.FriendlyName
		log.Debugf("Checking renderer: %v", friendly)
		if name != "" && friendly != name {
			continue
		}

		control, err := getService(root, avTransport)
		if err != nil || control == nil {
			log.Debugf("Renderer %v has no usable AVTransport", friendly)
			continue
		}
		renderer, err := getService(root, renderingControl)
		if err != nil || renderer == nil {
			log.Debugf("Renderer %v has no usable RenderingControl", friendly)
			continue
		}

		log.Infof("Using renderer %v", friendly)
		// bound the SOAP transport itself so an abandoned action cannot
		// hang around forever
		control.HTTPClient.Timeout = 2 * timeout
		renderer.HTTPClient.Timeout = 2 * timeout
		return &UPnP{
			name:     friendly,
			timeout:  timeout,
			control:  control,
			renderer: renderer,
		}, nil
	}

	if name != "" {
		return nil, fmt.Errorf("no renderer found with name %v", name)
	}
	return nil, fmt.Errorf("no renderers found")
}

// Name returns the friendly name of the selected renderer.
func (u *UPnP) Name() string {
	return u.name
}

func (u *UPnP) Play(ctx context.Context, url string) error {
	log.Debugf("Renderer play %v", url)
	return u.call(ctx, func() error {
		in := struct {
			InstanceID         string
			CurrentURI         string
			CurrentURIMetaData string
		}{"0", url, ""}
		if err := u.control.Action("SetAVTransportURI", in, nil); err != nil {
			return err
		}

		play := struct {
			InstanceID string
			Speed      string
		}{"0", "1"}
		return u.control.Action("Play", play, nil)
	})
}

func (u *UPnP) Stop(ctx context.Context) error {
	log.Debugln("Renderer stop")
	return u.call(ctx, func() error {
		in := struct{ InstanceID string }{"0"}
		return u.control.Action("Stop", in, nil)
	})
}

func (u *UPnP) SetVolume(ctx context.Context, level int) error {
	if level < 0 {
		level = 0
	}
	if level > 100 {
		level = 100
	}
	return u.call(ctx, func() error {
		in := struct {
			InstanceID    string
			Channel       string
			DesiredVolume string
		}{"0", "Master", strconv.Itoa(level)}
		return u.renderer.Action("SetVolume", in, nil)
	})
}

func (u *UPnP) Seek(ctx context.Context, pos time.Duration) error {
	return u.call(ctx, func() error {
		in := struct {
			InstanceID string
			Unit       string
			Target     string
		}{"0", "REL_TIME", formatRelTime(pos)}
		return u.control.Action("Seek", in, nil)
	})
}

func (u *UPnP) Status(ctx context.Context) (Status, error) {
	var status Status
	err := u.call(ctx, func() error {
		in := struct{ InstanceID string }{"0"}
		transport := struct {
			CurrentTransportState  string
			CurrentTransportStatus string
		}{}
		if err := u.control.Action("GetTransportInfo", in, &transport); err != nil {
			return err
		}

		if transport.CurrentTransportStatus != "" && transport.CurrentTransportStatus != "OK" {
			status.State = Failed
		} else {
			switch transport.CurrentTransportState {
			case "PLAYING":
				status.State = Playing
			case "TRANSITIONING":
				status.State = Buffering
			default:
				status.State = Stopped
			}
		}

		pos := struct{ RelTime string }{}
		if err := u.control.Action("GetPositionInfo", in, &pos); err == nil {
			status.Elapsed = parseRelTime(pos.RelTime)
		}
		return nil
	})
	return status, err
}

func (u *UPnP) Close() error {
	// SOAP is stateless, nothing to release
	return nil
}

func (u *UPnP) call(ctx context.Context, action func() error) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, u.timeout)
	defer cancel()

	// a timed-out action may still land on the renderer; nothing newer
	// may be sent until it has, or a dead session's transport commands
	// could overtake the stop that preempted it
	if u.pending != nil {
		select {
		case <-u.pending:
			u.pending = nil
		case <-ctx.Done():
			return fmt.Errorf("renderer %v: %w", u.name, ErrUnavailable)
		}
	}

	done := make(chan error, 1)
	go func() { done <- action() }()

	select {
	case <-ctx.Done():
		drained := make(chan struct{})
		u.pending = drained
		go func() {
			defer close(drained)
			<-done
		}()
		return fmt.Errorf("renderer %v: %w", u.name, ErrUnavailable)
	case err := <-done:
		if err != nil {
			return fmt.Errorf("renderer %v: %v: %w", u.name, err, ErrUnavailable)
		}
		return nil
	}
}

// formatRelTime renders a duration the way AVTransport wants it, H:MM:SS.
func formatRelTime(d time.Duration) string {
	secs := int(d / time.Second)
	return fmt.Sprintf("%d:%02d:%02d", secs/3600, (secs/60)%60, secs%60)
}

func parseRelTime(s string) time.Duration {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return 0
	}
	h, err1 := strconv.Atoi(parts[0])
	m, err2 := strconv.Atoi(parts[1])
	sec, err3 := strconv.Atoi(strings.SplitN(parts[2], ".", 2)[0])
	if err1 != nil || err2 != nil || err3 != nil {
		return 0
	}
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute + time.Duration(sec)*time.Second
}

func getService(dev *goupnp.RootDevice, id string) (*service, error) {
	namespace := fmt.Sprintf("urn:schemas-upnp-org:service:%v:1", id)
	s := dev.Device.FindService(namespace)
	if len(s) > 1 {
		return nil, fmt.Errorf("got %v services instead of the expected maximum of 1", len(s))
	}
	if len(s) == 0 {
		return nil, nil
	}

	return &service{
		SOAPClient: s[0].NewSOAPClient(),
		namespace:  namespace,
	}, nil
}

type service struct {
	*soap.SOAPClient
	namespace string
}

func (s *service) Action(name string, in interface{}, out interface{}) error {
	return s.SOAPClient.PerformAction(s.namespace, name, in, out)
}
