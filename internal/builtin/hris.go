package builtin

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/harun/opsframe/pkg/tool"
)

// Employee is one HRIS record.
type Employee struct {
	ID         string `json:"employee_id"`
	Name       string `json:"name"`
	Title      string `json:"title"`
	Department string `json:"department"`
	Email      string `json:"email"`
	ManagerID  string `json:"manager_id,omitempty"`
}

// Directory is an in-process HRIS backend.
type Directory struct {
	mu        sync.RWMutex
	employees map[string]Employee
}

// NewDirectory creates a directory seeded with employees.
func NewDirectory(employees ...Employee) *Directory {
	d := &Directory{employees: make(map[string]Employee, len(employees))}
	for _, e := range employees {
		d.employees[e.ID] = e
	}
	return d
}

// Put inserts or replaces an employee.
func (d *Directory) Put(e Employee) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.employees[e.ID] = e
}

// Get returns the employee with id.
func (d *Directory) Get(id string) (Employee, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	e, ok := d.employees[id]
	return e, ok
}

// ByDepartment lists a department's employees sorted by ID.
func (d *Directory) ByDepartment(department string) []Employee {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var out []Employee
	for _, e := range d.employees {
		if e.Department == department {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// HRISLookupManifest is the default manifest of hris_lookup.
func HRISLookupManifest() tool.Manifest {
	return tool.Manifest{
		Name:                "hris_lookup",
		Version:             "1.0.0",
		Description:         "Look up an employee record in the HR information system",
		Domains:             []string{"hr"},
		AllowedRoles:        []string{"hr_recruiter", "hr_manager", "executive", "admin"},
		RequiredPermissions: []string{"hris_read"},
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"employee_id":  map[string]any{"type": "string", "minLength": 1},
				"include_team": map[string]any{"type": "boolean"},
			},
			"required": []any{"employee_id"},
		},
		OutputSchema: map[string]any{
			"type":     "object",
			"required": []any{"employee"},
		},
		TimeoutSeconds: 10,
		Tags:           []string{"hr", "read-only"},
		Examples: []tool.Example{
			{Description: "Fetch one employee", Params: map[string]any{"employee_id": "E-1001"}},
		},
	}
}

type hrisLookupParams struct {
	EmployeeID  string `json:"employee_id"`
	IncludeTeam bool   `json:"include_team"`
}

// HRISLookup is a read-only tool over a Directory.
type HRISLookup struct {
	manifest  tool.Manifest
	directory *Directory
}

// NewHRISLookup creates the tool. An empty manifest uses the default.
func NewHRISLookup(m tool.Manifest, directory *Directory) *HRISLookup {
	if m.Name == "" {
		m = HRISLookupManifest()
	}
	return &HRISLookup{manifest: m, directory: directory}
}

// Manifest implements tool.Tool.
func (h *HRISLookup) Manifest() tool.Manifest {
	return h.manifest
}

// Execute implements tool.Tool.
func (h *HRISLookup) Execute(ctx context.Context, params map[string]any, _ *tool.ExecutionContext) (tool.Result, error) {
	var p hrisLookupParams
	if err := tool.Decode(params, &p); err != nil {
		return tool.FromError(err), nil
	}
	if err := ctx.Err(); err != nil {
		return tool.Result{}, err
	}

	employee, ok := h.directory.Get(p.EmployeeID)
	if !ok {
		return tool.Fail(tool.CategoryNotFound, "employee %s not found", p.EmployeeID), nil
	}

	data := map[string]any{"employee": employee}
	if p.IncludeTeam {
		var reports []Employee
		for _, e := range h.directory.ByDepartment(employee.Department) {
			if e.ManagerID == employee.ID {
				reports = append(reports, e)
			}
		}
		data["reports"] = reports
	}
	return tool.OK(data).WithMeta("source", fmt.Sprintf("hris:%s", employee.Department)), nil
}
