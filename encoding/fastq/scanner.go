package fastq

import (
	"bufio"
	"errors"
	"io"
)

var (
	// ErrShort is returned when a truncated FASTQ file is encountered.
	ErrShort = errors.New("short FASTQ file")
	// ErrInvalid is returned when an invalid FASTQ file is encountered.
	ErrInvalid = errors.New("invalid FASTQ file")
	// ErrDiscordant is returned when two mated FASTQ streams disagree on
	// the number of records they contain.
	ErrDiscordant = errors.New("discordant FASTQ pairs")

	errEOF = errors.New("eof")
)

// Scanner reads FASTQ records from an underlying stream. Scan returns a
// boolean indicating success; once it returns false it never returns true
// again, and the caller should check Err to distinguish a clean EOF from a
// parse failure. Scanners are not safe for concurrent use.
type Scanner struct {
	b   *bufio.Scanner
	err error
}

// NewScanner constructs a Scanner that reads raw FASTQ data from r.
func NewScanner(r io.Reader) *Scanner {
	return &Scanner{b: bufio.NewScanner(r)}
}

// Scan reads the next record into rec.
func (s *Scanner) Scan(rec *Record) bool {
	if s.err != nil {
		return false
	}
	if !s.b.Scan() {
		if s.err = s.b.Err(); s.err == nil {
			s.err = errEOF
		}
		return false
	}
	id := s.b.Bytes()
	if len(id) == 0 || id[0] != '@' {
		s.err = ErrInvalid
		return false
	}
	rec.ID = string(id)

	if !s.scanLine() {
		return false
	}
	rec.Seq = s.b.Text()

	if !s.scanLine() {
		return false
	}
	plus := s.b.Bytes()
	if len(plus) == 0 || plus[0] != '+' {
		s.err = ErrInvalid
		return false
	}
	rec.Plus = string(plus)

	if !s.scanLine() {
		return false
	}
	rec.Qual = s.b.Text()

	if err := rec.Validate(); err != nil {
		s.err = err
		return false
	}
	return true
}

func (s *Scanner) scanLine() bool {
	if ok := s.b.Scan(); !ok {
		if s.err = s.b.Err(); s.err == nil {
			s.err = ErrShort
		}
		return false
	}
	return true
}

// Err returns the scanning error, if any. It returns nil on a clean EOF.
func (s *Scanner) Err() error {
	if s.err == errEOF {
		return nil
	}
	return s.err
}

// PairScanner scans two FASTQ streams in lockstep, the way mated forward
// and reverse read files are consumed.
type PairScanner struct {
	r1, r2 *Scanner
	err    error
}

// NewPairScanner constructs a PairScanner over the forward (r1) and
// reverse (r2) streams.
func NewPairScanner(r1, r2 io.Reader) *PairScanner {
	return &PairScanner{r1: NewScanner(r1), r2: NewScanner(r2)}
}

// Scan reads the next record pair into fwd, rev.
func (p *PairScanner) Scan(fwd, rev *Record) bool {
	ok1 := p.r1.Scan(fwd)
	ok2 := p.r2.Scan(rev)
	if ok1 != ok2 {
		p.err = ErrDiscordant
	}
	return ok1 && ok2
}

// Err returns the scanning error, if any, checked after Scan returns
// false.
func (p *PairScanner) Err() error {
	if err := p.r1.Err(); err != nil {
		return err
	}
	if err := p.r2.Err(); err != nil {
		return err
	}
	return p.err
}
