// Package domain declares the sample organisation domain served by flatquery
// when no catalogue file is configured.
package domain

import "github.com/conduit-lang/flatquery/internal/orm/schema"

// Registry builds the registry for the sample domain
func Registry() (*schema.Registry, error) {
	return schema.Build(Declarations()...)
}

// Declarations returns the registration table of the sample domain
func Declarations() []schema.EntityDecl {
	return []schema.EntityDecl{
		{
			Name: "Organisation",
			Properties: []schema.PropertyDecl{
				pk(),
				prop("name", schema.TypeString),
				prop("industry", schema.TypeString),
				prop("foundYear", schema.TypeInt),
			},
			Navigations: []schema.NavigationDecl{
				hasMany("departments", "Department", "organisation", schema.RecursionCap(2)),
			},
			Annotations: []schema.Annotation{schema.OrderBy("name")},
		},
		{
			Name: "Department",
			Properties: []schema.PropertyDecl{
				pk(),
				prop("name", schema.TypeString),
				prop("budget", schema.TypeDecimal),
				nullable("head", schema.TypeString),
				prop("organisationId", schema.TypeInt),
			},
			Navigations: []schema.NavigationDecl{
				belongsTo("organisation", "Organisation", "departments"),
				hasMany("employees", "Employee", "department"),
			},
		},
		{
			Name: "Employee",
			Properties: []schema.PropertyDecl{
				pk(),
				prop("firstName", schema.TypeString),
				prop("lastName", schema.TypeString),
				prop("email", schema.TypeString),
				prop("departmentId", schema.TypeInt),
				prop("roleId", schema.TypeInt),
			},
			Navigations: []schema.NavigationDecl{
				belongsTo("department", "Department", "employees"),
				belongsTo("role", "Role", "employees"),
				{
					Name:        "schedule",
					Target:      "Schedule",
					Cardinality: schema.ManyToOne,
					Inverse:     "employee",
					LocalKey:    "id",
					RemoteKey:   "employee_id",
				},
				manyToMany("projects", "Project", "employee_projects", "teamMembers"),
				manyToMany("skills", "Skill", "employee_skills", "employees"),
				manyToMany("teams", "Team", "team_members", "members"),
				hasMany("certifications", "Certification", "employee"),
				hasMany("tasks", "Task", "assignedTo"),
			},
			Annotations: []schema.Annotation{
				schema.OrderBy("lastName"),
				schema.OrderBy("firstName"),
			},
		},
		{
			Name: "Role",
			Properties: []schema.PropertyDecl{
				pk(),
				prop("title", schema.TypeString),
				prop("level", schema.TypeInt),
				nullable("description", schema.TypeText),
			},
			Navigations: []schema.NavigationDecl{
				hasMany("employees", "Employee", "role", schema.RecursionCap(2)),
			},
			Annotations: []schema.Annotation{
				schema.OrderBy("level"),
				schema.OrderBy("title"),
			},
		},
		{
			Name: "Certification",
			Properties: []schema.PropertyDecl{
				pk(),
				prop("name", schema.TypeString),
				prop("issuer", schema.TypeString),
				prop("validUntil", schema.TypeTimestamp),
				prop("employeeId", schema.TypeInt),
			},
			Navigations: []schema.NavigationDecl{
				belongsTo("employee", "Employee", "certifications", schema.RecursionCap(2)),
			},
			Annotations: []schema.Annotation{
				schema.OrderByDesc("validUntil"),
				schema.Where("validUntil >= now()"),
			},
		},
		{
			Name: "Skill",
			Properties: []schema.PropertyDecl{
				pk(),
				prop("name", schema.TypeString),
				prop("proficiency", schema.TypeString),
				prop("category", schema.TypeString),
			},
			Navigations: []schema.NavigationDecl{
				manyToMany("employees", "Employee", "employee_skills", "skills"),
			},
		},
		{
			Name: "Team",
			Properties: []schema.PropertyDecl{
				pk(),
				prop("name", schema.TypeString),
				nullable("purpose", schema.TypeText),
				prop("size", schema.TypeInt),
			},
			Navigations: []schema.NavigationDecl{
				manyToMany("members", "Employee", "team_members", "teams"),
				hasMany("meetings", "Meeting", "team"),
			},
		},
		{
			Name: "Meeting",
			Properties: []schema.PropertyDecl{
				pk(),
				prop("topic", schema.TypeString),
				prop("scheduleTime", schema.TypeTimestamp),
				prop("duration", schema.TypeInt),
				prop("teamId", schema.TypeInt),
			},
			Navigations: []schema.NavigationDecl{
				belongsTo("team", "Team", "meetings", schema.RecursionCap(2)),
			},
		},
		{
			Name: "Project",
			Properties: []schema.PropertyDecl{
				pk(),
				prop("title", schema.TypeString),
				prop("deadline", schema.TypeTimestamp),
				prop("budget", schema.TypeDecimal),
				prop("clientId", schema.TypeInt),
			},
			Navigations: []schema.NavigationDecl{
				belongsTo("client", "Client", "projects"),
				hasMany("tasks", "Task", "project"),
				manyToMany("teamMembers", "Employee", "employee_projects", "projects"),
			},
		},
		{
			Name: "Task",
			Properties: []schema.PropertyDecl{
				pk(),
				prop("title", schema.TypeString),
				prop("status", schema.TypeString),
				nullable("dueDate", schema.TypeDate),
				prop("projectId", schema.TypeInt),
				nullable("assignedToId", schema.TypeInt),
			},
			Navigations: []schema.NavigationDecl{
				belongsTo("project", "Project", "tasks"),
				belongsTo("assignedTo", "Employee", "tasks"),
			},
		},
		{
			Name: "Client",
			Properties: []schema.PropertyDecl{
				pk(),
				prop("name", schema.TypeString),
				prop("industry", schema.TypeString),
				prop("locationId", schema.TypeInt),
			},
			Navigations: []schema.NavigationDecl{
				belongsTo("location", "Location", "clients"),
				hasMany("projects", "Project", "client"),
				hasMany("invoices", "Invoice", "client"),
			},
		},
		{
			Name: "Location",
			Properties: []schema.PropertyDecl{
				pk(),
				prop("city", schema.TypeString),
				nullable("state", schema.TypeString),
				prop("country", schema.TypeString),
			},
			Navigations: []schema.NavigationDecl{
				hasMany("clients", "Client", "location"),
			},
		},
		{
			Name: "Invoice",
			Properties: []schema.PropertyDecl{
				pk(),
				prop("amount", schema.TypeDecimal),
				prop("dateIssued", schema.TypeDate),
				prop("dueDate", schema.TypeDate),
				prop("clientId", schema.TypeInt),
			},
			Navigations: []schema.NavigationDecl{
				belongsTo("client", "Client", "invoices", schema.RecursionCap(2)),
				hasMany("payments", "Payment", "invoice", schema.RecursionCap(2)),
			},
		},
		{
			Name: "Payment",
			Properties: []schema.PropertyDecl{
				pk(),
				prop("amount", schema.TypeDecimal),
				prop("datePaid", schema.TypeDate),
				prop("method", schema.TypeString),
				prop("invoiceId", schema.TypeInt),
			},
			Navigations: []schema.NavigationDecl{
				belongsTo("invoice", "Invoice", "payments"),
			},
		},
		{
			Name: "Schedule",
			Properties: []schema.PropertyDecl{
				pk(),
				prop("day", schema.TypeString),
				prop("startTime", schema.TypeTime),
				prop("endTime", schema.TypeTime),
				prop("employeeId", schema.TypeInt),
			},
			Navigations: []schema.NavigationDecl{
				belongsTo("employee", "Employee", "schedule"),
			},
		},
	}
}

func pk() schema.PropertyDecl {
	return schema.PropertyDecl{Name: "id", Type: schema.TypeInt, Annotations: []schema.Annotation{schema.Primary()}}
}

func prop(name string, t schema.PrimitiveType) schema.PropertyDecl {
	return schema.PropertyDecl{Name: name, Type: t}
}

func nullable(name string, t schema.PrimitiveType) schema.PropertyDecl {
	return schema.PropertyDecl{Name: name, Type: t, Nullable: true}
}

func belongsTo(name, target, inverse string, annotations ...schema.Annotation) schema.NavigationDecl {
	return schema.NavigationDecl{
		Name:        name,
		Target:      target,
		Cardinality: schema.ManyToOne,
		Inverse:     inverse,
		Annotations: annotations,
	}
}

func hasMany(name, target, inverse string, annotations ...schema.Annotation) schema.NavigationDecl {
	return schema.NavigationDecl{
		Name:        name,
		Target:      target,
		Cardinality: schema.OneToMany,
		Inverse:     inverse,
		Annotations: annotations,
	}
}

func manyToMany(name, target, joinTable, inverse string) schema.NavigationDecl {
	return schema.NavigationDecl{
		Name:        name,
		Target:      target,
		Cardinality: schema.ManyToMany,
		Inverse:     inverse,
		JoinTable:   joinTable,
	}
}
