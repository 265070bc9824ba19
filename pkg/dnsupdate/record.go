package dnsupdate

import (
	"fmt"
	"net"

	"github.com/miekg/dns"
)

// Record is an address record as carried in UPDATE messages.
type Record struct {
	// Name is the owner name; it is made fully qualified when converted.
	Name string

	// Type is dns.TypeA or dns.TypeAAAA.
	Type uint16

	// TTL in seconds.
	TTL uint32

	// RData is the address literal.
	RData string
}

// NewARecord creates a new A record.
func NewARecord(name, ip string, ttl uint32) Record {
	return Record{Name: name, Type: dns.TypeA, TTL: ttl, RData: ip}
}

// NewAAAARecord creates a new AAAA record.
func NewAAAARecord(name, ip string, ttl uint32) Record {
	return Record{Name: name, Type: dns.TypeAAAA, TTL: ttl, RData: ip}
}

// TypeString returns the mnemonic of the record type.
func (r Record) TypeString() string {
	if name, ok := dns.TypeToString[r.Type]; ok {
		return name
	}
	return fmt.Sprintf("TYPE%d", r.Type)
}

// ToRR converts the Record to a dns.RR. Every call returns a fresh value,
// which matters because the update helpers rewrite RR headers in place.
func (r Record) ToRR() (dns.RR, error) {
	header := dns.RR_Header{
		Name:   dns.Fqdn(r.Name),
		Rrtype: r.Type,
		Class:  dns.ClassINET,
		Ttl:    r.TTL,
	}

	ip := net.ParseIP(r.RData)

	switch r.Type {
	case dns.TypeA:
		if ip == nil || ip.To4() == nil {
			return nil, fmt.Errorf("invalid IPv4 address: %s", r.RData)
		}
		return &dns.A{Hdr: header, A: ip.To4()}, nil

	case dns.TypeAAAA:
		if ip == nil || ip.To4() != nil {
			return nil, fmt.Errorf("invalid IPv6 address: %s", r.RData)
		}
		return &dns.AAAA{Hdr: header, AAAA: ip.To16()}, nil

	default:
		return nil, fmt.Errorf("unsupported record type: %s", r.TypeString())
	}
}

// RecordFromRR creates a Record from an A or AAAA dns.RR.
func RecordFromRR(rr dns.RR) (Record, error) {
	header := rr.Header()
	record := Record{
		Name: header.Name,
		Type: header.Rrtype,
		TTL:  header.Ttl,
	}

	switch v := rr.(type) {
	case *dns.A:
		record.RData = v.A.String()
	case *dns.AAAA:
		record.RData = v.AAAA.String()
	default:
		return record, fmt.Errorf("unsupported record type: %s", dns.TypeToString[header.Rrtype])
	}

	return record, nil
}

func toRRs(records []Record) ([]dns.RR, error) {
	rrs := make([]dns.RR, 0, len(records))
	for _, r := range records {
		rr, err := r.ToRR()
		if err != nil {
			return nil, fmt.Errorf("record %s: %w", r.Name, err)
		}
		rrs = append(rrs, rr)
	}
	return rrs, nil
}
