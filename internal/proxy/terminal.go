package proxy

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/antialize/simple-admin-sub001/internal/hostsession"
)

// ptyShellScript is the Python PTY-forking payload every terminal job
// runs (original_source/src/bin/server/terminal.rs's inner()). It forks
// bash under a pty, then multiplexes its own stdin into raw PTY writes
// ('d' packets) and TIOCSWINSZ resizes ('r' packets), NUL-delimited, and
// forwards everything the pty writes straight back out on stdout.
const ptyShellScript = `
import pty
import os
import sys
import termios
import struct
import fcntl
import select

(pid, fd) = pty.fork()
if pid == 0:
    os.environ['name'] = 'xterm-color'
    os.environ['TERM'] = 'xterm'
    os.execl("/bin/bash", "/bin/bash")

flag = fcntl.fcntl(0, fcntl.F_GETFL)
fcntl.fcntl(0, fcntl.F_SETFL, flag | os.O_NONBLOCK)

flag = fcntl.fcntl(fd, fcntl.F_GETFL)
fcntl.fcntl(fd, fcntl.F_SETFL, flag | os.O_NONBLOCK)

data= b'';
while True:
    r, _, _ = select.select([fd, 0], [] ,[])
    if fd in r:
        os.write(1, os.read(fd, 1024*1024))
    if 0 in r:
        new = os.read(0, 1024*1024)
        data = data + new
        if not new: break
        while True:
            pkg, p, rem = data.partition(b'\0')
            if len(p) == 0: break
            data = rem
            if pkg[0] == ord(b'd'):
                os.write(fd, pkg[1:])
            elif pkg[0] == ord(b'r'):
                rows, cols = pkg[1:].split(b',')
                winsize = struct.pack("HHHH", int(rows), int(cols), 0, 0)
                fcntl.ioctl(fd, termios.TIOCSWINSZ, winsize)

os.waitpid(pid, 0)`

// TerminalSession bridges a browser-attached PTY to an interactive shell
// job on a connected agent. The underlying job is killed if the session
// is closed before the agent reports it finished (MarkKillOnClose).
type TerminalSession struct {
	job    *hostsession.JobHandle
	client *hostsession.HostClient
}

// StartTerminal asks host to run the pinned PTY shell script (spec §4.F),
// with stdin/stdout/stderr all carried as binary Data messages. cols and
// rows are passed as the script's arguments, but the script does not read
// them: the PTY keeps its default size until Resize is called.
func StartTerminal(host *hostsession.HostClient, cols, rows int) (*TerminalSession, error) {
	job, err := host.StartJob(hostsession.Envelope{
		Type:        hostsession.MessageRunScript,
		Name:        "shell.py",
		Interpreter: "/usr/bin/python3",
		Content:     ptyShellScript,
		Args:        []string{strconv.Itoa(cols), strconv.Itoa(rows)},
		StdinType:   hostsession.RunScriptStdinBinary,
		StdoutType:  hostsession.RunScriptOutBinary,
		StderrType:  hostsession.RunScriptOutBinary,
	})
	if err != nil {
		return nil, fmt.Errorf("proxy: start terminal: %w", err)
	}
	job.MarkKillOnClose()
	return &TerminalSession{job: job, client: host}, nil
}

// Write sends browser keystrokes/input to the agent's PTY, framed as a
// 'd' packet the pty shell script's stdin parser expects.
func (t *TerminalSession) Write(data []byte) error {
	return t.sendStdin(append([]byte{'d'}, data...))
}

// Resize sends a PTY resize control, framed as an 'r' packet. The pty
// shell script expects "rows,cols" after the 'r' tag, even though the
// Go-side Resize(cols, rows) parameter order is the reverse.
func (t *TerminalSession) Resize(cols, rows int) error {
	return t.sendStdin(append([]byte{'r'}, []byte(fmt.Sprintf("%d,%d", rows, cols))...))
}

// sendStdin NUL-terminates pkt and delivers it as the job's stdin Data.
func (t *TerminalSession) sendStdin(pkt []byte) error {
	raw, err := json.Marshal(append(pkt, 0))
	if err != nil {
		return fmt.Errorf("proxy: encode terminal stdin: %w", err)
	}
	return t.client.SendJob(t.job.ID, hostsession.Envelope{
		Type:   hostsession.MessageData,
		Source: hostsession.DataStdin,
		Data:   raw,
	})
}

// Recv returns the next browser-facing wire frame, or ok=false once the
// job has ended (agent reported Success/Failure, or the connection to
// the host was lost).
func (t *TerminalSession) Recv() (wire string, ok bool) {
	for {
		env, ok := t.job.Recv()
		if !ok {
			return "", false
		}
		switch env.Type {
		case hostsession.MessageData:
			var data []byte
			if len(env.Data) > 0 {
				_ = json.Unmarshal(env.Data, &data)
			}
			return EncodeTerminalFrame(FrameKindData, data), true
		case hostsession.MessageSuccess, hostsession.MessageFailure:
			return "", false
		}
	}
}

// Close terminates the terminal job.
func (t *TerminalSession) Close() error {
	return t.job.Close()
}
