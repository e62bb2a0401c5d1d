package orchestrator

import "strings"

// StageInfo is the static description of a stage shown to operators.
type StageInfo struct {
	Name        string `json:"name"`
	Label       string `json:"label"`
	Description string `json:"description"`
	Group       string `json:"group,omitempty"`
	Order       int    `json:"order"`
}

var stageInfo = map[Stage]StageInfo{
	StagePrepare: {
		Label:       "Prepare and validate plan",
		Description: "Locate the planning sheet, validate its structure, check dependencies and probe basic network reachability.",
		Group:       "preparation",
	},
	StageInitCluster: {
		Label:       "Initialize cluster",
		Description: "Create the empty cluster and initialize base resources.",
		Group:       "cluster",
	},
	StageConfigCluster: {
		Label:       "Configure cluster",
		Description: "Apply cluster network, security and resource settings.",
		Group:       "cluster",
	},
	StageDeployCloudTower: {
		Label:       "Deploy CloudTower",
		Description: "Deploy the CloudTower management VM and run its first-time setup.",
		Group:       "platform",
	},
	StageAttachCluster: {
		Label:       "Attach to CloudTower",
		Description: "Register the cluster with CloudTower and establish trust.",
		Group:       "platform",
	},
	StageCloudTowerConfig: {
		Label:       "Configure CloudTower",
		Description: "Apply CloudTower integrations and advanced settings.",
		Group:       "platform",
	},
	StageCheckClusterHealthy: {
		Label:       "Cluster inspection",
		Description: "Run the CloudTower inspection center and export the health report.",
		Group:       "platform",
	},
	StageDeployOBS: {
		Label:       "Deploy OBS",
		Description: "Upload and deploy the observability application package.",
		Group:       "delivery",
	},
	StageDeployBAK: {
		Label:       "Deploy BAK",
		Description: "Upload and deploy the backup application package.",
		Group:       "delivery",
	},
	StageDeployER: {
		Label:       "Deploy ER",
		Description: "Upload and deploy the ER application package.",
		Group:       "delivery",
	},
	StageDeploySFS: {
		Label:       "Deploy SFS",
		Description: "Upload and deploy the SFS application package.",
		Group:       "delivery",
	},
	StageDeploySKS: {
		Label:       "Deploy SKS",
		Description: "Upload and deploy the SKS application package.",
		Group:       "delivery",
	},
	StageCreateTestVMs: {
		Label:       "Create test VMs",
		Description: "Create and configure virtual machines used for acceptance checks.",
		Group:       "acceptance",
	},
	StagePerfReliability: {
		Label:       "Performance and reliability",
		Description: "Run performance baselines and reliability checks and write the assessment report.",
		Group:       "acceptance",
	},
	// StageCleanup has no entry; Info synthesizes it.
}

// Info returns the metadata for stage. Stages without an explicit entry get a
// synthesized default; Info never fails.
func Info(stage Stage) StageInfo {
	info, ok := stageInfo[stage]
	if !ok {
		info = StageInfo{Label: titleCase(stage.String())}
	}
	info.Name = stage.String()
	info.Order = int(stage)
	return info
}

// ListInfo returns metadata for every stage in canonical order.
func ListInfo() []StageInfo {
	all := AllStages()
	out := make([]StageInfo, len(all))
	for i, s := range all {
		out[i] = Info(s)
	}
	return out
}

func titleCase(id string) string {
	words := strings.Fields(strings.ReplaceAll(id, "_", " "))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
