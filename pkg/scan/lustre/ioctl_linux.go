//go:build linux

package lustre

import (
	"encoding/binary"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

// llIocLovGetstripe is LL_IOC_LOV_GETSTRIPE, _IOW('f', 155, long).
const llIocLovGetstripe = 0x4008669b

// getStripe fills a lov_user_md buffer for path.
func getStripe(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	buf := make([]byte, BufferSize)
	binary.LittleEndian.PutUint32(buf[0:], magicV3)
	binary.LittleEndian.PutUint16(buf[28:], MaxStripeCount)

	_, _, errno := unix.Syscall(unix.SYS_IOCTL, f.Fd(), llIocLovGetstripe, uintptr(unsafe.Pointer(&buf[0])))
	if errno != 0 {
		return nil, &os.PathError{Op: "ioctl", Path: path, Err: errno}
	}
	return buf, nil
}
