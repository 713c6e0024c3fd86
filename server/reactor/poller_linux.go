//go:build linux

package reactor

import (
	"encoding/binary"

	"golang.org/x/sys/unix"
)

const maxEvents = 256

// poller is a level-triggered epoll instance with an eventfd to interrupt
// a blocked wait.
type poller struct {
	epfd   int
	wfd    int
	events []unix.EpollEvent
}

func newPoller() (*poller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	wfd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		unix.Close(epfd)
		return nil, err
	}
	p := &poller{
		epfd:   epfd,
		wfd:    wfd,
		events: make([]unix.EpollEvent, maxEvents),
	}
	if err = p.add(wfd, unix.EPOLLIN); err != nil {
		p.close()
		return nil, err
	}
	return p, nil
}

func (p *poller) add(fd int, events uint32) error {
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &unix.EpollEvent{Events: events, Fd: int32(fd)})
}

func (p *poller) mod(fd int, events uint32) error {
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, &unix.EpollEvent{Events: events, Fd: int32(fd)})
}

// register adds fd, or updates it when a registration is still present.
func (p *poller) register(fd int, events uint32) error {
	err := p.add(fd, events)
	if err == unix.EEXIST {
		err = p.mod(fd, events)
	}
	return err
}

func (p *poller) del(fd int) error {
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil)
}

// wake interrupts a blocked wait.
func (p *poller) wake() error {
	var b [8]byte
	binary.NativeEndian.PutUint64(b[:], 1)
	_, err := unix.Write(p.wfd, b[:])
	if err == unix.EAGAIN {
		// counter saturated, a wake-up is pending anyway
		err = nil
	}
	return err
}

// wait blocks until at least one descriptor is ready or wake is called and
// calls handle for every ready descriptor.
func (p *poller) wait(handle func(fd int, events uint32)) error {
	n, err := unix.EpollWait(p.epfd, p.events, -1)
	if err != nil {
		if err == unix.EINTR {
			return nil
		}
		return err
	}
	for i := 0; i < n; i++ {
		ev := p.events[i]
		fd := int(ev.Fd)
		if fd == p.wfd {
			var b [8]byte
			unix.Read(p.wfd, b[:])
			continue
		}
		handle(fd, ev.Events)
	}
	return nil
}

func (p *poller) close() {
	unix.Close(p.wfd)
	unix.Close(p.epfd)
}
