package snmpworker

import (
	"context"
	"strings"
	"time"

	"github.com/gosnmp/gosnmp"

	"github.com/oltfleet/pollerd/internal/domain"
)

// GoSNMPWorker executes queries against real OLTs via
// github.com/gosnmp/gosnmp.
type GoSNMPWorker struct{}

// NewGoSNMPWorker returns a Worker backed by gosnmp.
func NewGoSNMPWorker() *GoSNMPWorker {
	return &GoSNMPWorker{}
}

func snmpVersion(v string) gosnmp.SnmpVersion {
	switch strings.ToLower(v) {
	case "1", "v1":
		return gosnmp.Version1
	case "3", "v3":
		return gosnmp.Version3
	default:
		return gosnmp.Version2c
	}
}

// Execute dials the OLT's SNMP endpoint and runs the operation named by
// opType. discovery/get map to a single GET; walk/table/bulk map to a
// BulkWalk rooted at oid. Errors are classified into the ErrorKind
// taxonomy so callers never have to inspect gosnmp error types directly.
func (w *GoSNMPWorker) Execute(ctx context.Context, endpoint domain.SNMPEndpoint, opType domain.OperationType, oid string, timeout time.Duration) (Result, error) {
	client := &gosnmp.GoSNMP{
		Target:    endpoint.Host,
		Port:      uint16(endpoint.Port),
		Community: endpoint.Community,
		Version:   snmpVersion(endpoint.Version),
		Timeout:   timeout,
		Retries:   0,
		Context:   ctx,
	}
	if client.Port == 0 {
		client.Port = 161
	}
	if client.Community == "" {
		client.Community = "public"
	}

	if err := client.Connect(); err != nil {
		return classifyConnectErr(err), nil
	}
	defer client.Conn.Close()

	switch opType {
	case domain.OperationWalk, domain.OperationTable, domain.OperationBulk:
		var values []gosnmp.SnmpPDU
		err := client.BulkWalk(oid, func(pdu gosnmp.SnmpPDU) error {
			values = append(values, pdu)
			return nil
		})
		if err != nil {
			return classifyQueryErr(err), nil
		}
		return Result{Value: values}, nil
	default:
		resp, err := client.Get([]string{oid})
		if err != nil {
			return classifyQueryErr(err), nil
		}
		if resp.Error != gosnmp.NoError {
			return Result{ErrorKind: domain.ErrorProtocol, Detail: resp.Error.String()}, nil
		}
		if len(resp.Variables) == 0 {
			return Result{ErrorKind: domain.ErrorProtocol, Detail: "empty response"}, nil
		}
		return Result{Value: resp.Variables[0].Value}, nil
	}
}

func classifyConnectErr(err error) Result {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout"):
		return Result{ErrorKind: domain.ErrorTimeout, Detail: err.Error()}
	default:
		return Result{ErrorKind: domain.ErrorTransport, Detail: err.Error()}
	}
}

func classifyQueryErr(err error) Result {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "context deadline"):
		return Result{ErrorKind: domain.ErrorTimeout, Detail: err.Error()}
	case strings.Contains(msg, "refused"), strings.Contains(msg, "unreachable"), strings.Contains(msg, "reset"):
		return Result{ErrorKind: domain.ErrorTransport, Detail: err.Error()}
	case strings.Contains(msg, "nosuchname"), strings.Contains(msg, "generr"), strings.Contains(msg, "nosuchinstance"):
		return Result{ErrorKind: domain.ErrorProtocol, Detail: err.Error()}
	case strings.Contains(msg, "bad community"), strings.Contains(msg, "authentication"):
		return Result{ErrorKind: domain.ErrorAuth, Detail: err.Error(), NonRetriable: true}
	default:
		return Result{ErrorKind: domain.ErrorInternal, Detail: err.Error()}
	}
}
