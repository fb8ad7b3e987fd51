package ecsec2

import (
	"context"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	logstypes "github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs/types"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/aws-sdk-go-v2/service/ecs"
	ecstypes "github.com/aws/aws-sdk-go-v2/service/ecs/types"
	"github.com/aws/smithy-go"

	"github.com/clawster/clawster/pkg/target"
)

type fakeECS struct {
	clusters       map[string]bool
	services       map[string]*ecstypes.Service
	createClusters int
	createServices int
	registered     []*ecs.RegisterTaskDefinitionInput
	updates        []*ecs.UpdateServiceInput
	deletedCluster bool
	deletedService bool
}

func newFakeECS() *fakeECS {
	return &fakeECS{clusters: map[string]bool{}, services: map[string]*ecstypes.Service{}}
}

func (f *fakeECS) DescribeClusters(_ context.Context, params *ecs.DescribeClustersInput, _ ...func(*ecs.Options)) (*ecs.DescribeClustersOutput, error) {
	out := &ecs.DescribeClustersOutput{}
	for _, name := range params.Clusters {
		if f.clusters[name] {
			out.Clusters = append(out.Clusters, ecstypes.Cluster{
				ClusterName: aws.String(name), Status: aws.String("ACTIVE"),
			})
		}
	}
	return out, nil
}

func (f *fakeECS) CreateCluster(_ context.Context, params *ecs.CreateClusterInput, _ ...func(*ecs.Options)) (*ecs.CreateClusterOutput, error) {
	f.createClusters++
	f.clusters[aws.ToString(params.ClusterName)] = true
	return &ecs.CreateClusterOutput{Cluster: &ecstypes.Cluster{
		ClusterName: params.ClusterName, Status: aws.String("ACTIVE"),
	}}, nil
}

func (f *fakeECS) DeleteCluster(_ context.Context, params *ecs.DeleteClusterInput, _ ...func(*ecs.Options)) (*ecs.DeleteClusterOutput, error) {
	f.deletedCluster = true
	delete(f.clusters, aws.ToString(params.Cluster))
	return &ecs.DeleteClusterOutput{}, nil
}

func (f *fakeECS) RegisterTaskDefinition(_ context.Context, params *ecs.RegisterTaskDefinitionInput, _ ...func(*ecs.Options)) (*ecs.RegisterTaskDefinitionOutput, error) {
	f.registered = append(f.registered, params)
	arn := fmt.Sprintf("arn:aws:ecs:task-definition/%s:%d", aws.ToString(params.Family), len(f.registered))
	return &ecs.RegisterTaskDefinitionOutput{TaskDefinition: &ecstypes.TaskDefinition{
		TaskDefinitionArn: aws.String(arn),
	}}, nil
}

func (f *fakeECS) DescribeServices(_ context.Context, params *ecs.DescribeServicesInput, _ ...func(*ecs.Options)) (*ecs.DescribeServicesOutput, error) {
	out := &ecs.DescribeServicesOutput{}
	for _, name := range params.Services {
		if svc, ok := f.services[name]; ok {
			out.Services = append(out.Services, *svc)
		}
	}
	return out, nil
}

func (f *fakeECS) CreateService(_ context.Context, params *ecs.CreateServiceInput, _ ...func(*ecs.Options)) (*ecs.CreateServiceOutput, error) {
	f.createServices++
	svc := &ecstypes.Service{
		ServiceName:  params.ServiceName,
		Status:       aws.String("ACTIVE"),
		DesiredCount: aws.ToInt32(params.DesiredCount),
		RunningCount: aws.ToInt32(params.DesiredCount),
		Deployments:  []ecstypes.Deployment{{}},
	}
	f.services[aws.ToString(params.ServiceName)] = svc
	return &ecs.CreateServiceOutput{Service: svc}, nil
}

func (f *fakeECS) UpdateService(_ context.Context, params *ecs.UpdateServiceInput, _ ...func(*ecs.Options)) (*ecs.UpdateServiceOutput, error) {
	f.updates = append(f.updates, params)
	svc, ok := f.services[aws.ToString(params.Service)]
	if !ok {
		return nil, &smithyAPIError{code: "ServiceNotFoundException"}
	}
	if params.DesiredCount != nil {
		svc.DesiredCount = aws.ToInt32(params.DesiredCount)
		svc.RunningCount = svc.DesiredCount
	}
	return &ecs.UpdateServiceOutput{Service: svc}, nil
}

func (f *fakeECS) DeleteService(_ context.Context, params *ecs.DeleteServiceInput, _ ...func(*ecs.Options)) (*ecs.DeleteServiceOutput, error) {
	f.deletedService = true
	delete(f.services, aws.ToString(params.Service))
	return &ecs.DeleteServiceOutput{}, nil
}

func (f *fakeECS) ListTasks(_ context.Context, _ *ecs.ListTasksInput, _ ...func(*ecs.Options)) (*ecs.ListTasksOutput, error) {
	return &ecs.ListTasksOutput{TaskArns: []string{"arn:aws:ecs:task/abc"}}, nil
}

func (f *fakeECS) DescribeTasks(_ context.Context, _ *ecs.DescribeTasksInput, _ ...func(*ecs.Options)) (*ecs.DescribeTasksOutput, error) {
	return &ecs.DescribeTasksOutput{Tasks: []ecstypes.Task{
		{ContainerInstanceArn: aws.String("arn:aws:ecs:container-instance/ci-1")},
	}}, nil
}

func (f *fakeECS) DescribeContainerInstances(_ context.Context, _ *ecs.DescribeContainerInstancesInput, _ ...func(*ecs.Options)) (*ecs.DescribeContainerInstancesOutput, error) {
	return &ecs.DescribeContainerInstancesOutput{ContainerInstances: []ecstypes.ContainerInstance{
		{Ec2InstanceId: aws.String("i-0123456789")},
	}}, nil
}

type fakeEC2 struct{ privateIP string }

func (f *fakeEC2) DescribeInstances(_ context.Context, _ *ec2.DescribeInstancesInput, _ ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error) {
	return &ec2.DescribeInstancesOutput{Reservations: []ec2types.Reservation{
		{Instances: []ec2types.Instance{{PrivateIpAddress: aws.String(f.privateIP)}}},
	}}, nil
}

type fakeLogs struct {
	groups        map[string]bool
	createCalls   int
	deletedGroups []string
	events        []string
}

func newFakeLogs() *fakeLogs { return &fakeLogs{groups: map[string]bool{}} }

func (f *fakeLogs) CreateLogGroup(_ context.Context, params *cloudwatchlogs.CreateLogGroupInput, _ ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.CreateLogGroupOutput, error) {
	f.createCalls++
	name := aws.ToString(params.LogGroupName)
	if f.groups[name] {
		return nil, &logstypes.ResourceAlreadyExistsException{}
	}
	f.groups[name] = true
	return &cloudwatchlogs.CreateLogGroupOutput{}, nil
}

func (f *fakeLogs) DeleteLogGroup(_ context.Context, params *cloudwatchlogs.DeleteLogGroupInput, _ ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.DeleteLogGroupOutput, error) {
	f.deletedGroups = append(f.deletedGroups, aws.ToString(params.LogGroupName))
	return &cloudwatchlogs.DeleteLogGroupOutput{}, nil
}

func (f *fakeLogs) DescribeLogStreams(_ context.Context, _ *cloudwatchlogs.DescribeLogStreamsInput, _ ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.DescribeLogStreamsOutput, error) {
	return &cloudwatchlogs.DescribeLogStreamsOutput{LogStreams: []logstypes.LogStream{
		{LogStreamName: aws.String("gateway/gateway/abc")},
	}}, nil
}

func (f *fakeLogs) GetLogEvents(_ context.Context, _ *cloudwatchlogs.GetLogEventsInput, _ ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.GetLogEventsOutput, error) {
	out := &cloudwatchlogs.GetLogEventsOutput{}
	for i, msg := range f.events {
		ts := int64(i)
		out.Events = append(out.Events, logstypes.OutputLogEvent{Message: aws.String(msg), Timestamp: &ts})
	}
	return out, nil
}

// smithyAPIError is a minimal smithy.APIError for fault injection.
type smithyAPIError struct{ code string }

func (e *smithyAPIError) Error() string                { return e.code }
func (e *smithyAPIError) ErrorCode() string            { return e.code }
func (e *smithyAPIError) ErrorMessage() string         { return e.code }
func (e *smithyAPIError) ErrorFault() smithy.ErrorFault { return smithy.FaultClient }

func newTestTarget(t *testing.T) (*Target, *fakeECS, *fakeLogs) {
	t.Helper()
	ecsClient := newFakeECS()
	logsClient := newFakeLogs()
	tgt, err := NewTarget(DefaultConfig("support-bot", "us-east-1"), ecsClient, &fakeEC2{privateIP: "10.0.1.9"}, logsClient)
	if err != nil {
		t.Fatalf("NewTarget: %v", err)
	}
	tgt.waiter.Interval = 0
	return tgt, ecsClient, logsClient
}

func TestInstallIsIdempotent(t *testing.T) {
	tgt, ecsClient, logsClient := newTestTarget(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		result := tgt.Install(ctx, target.InstallOptions{Port: 19000})
		if !result.Success {
			t.Fatalf("install %d failed: %s", i, result.Message)
		}
	}
	if ecsClient.createClusters != 1 {
		t.Errorf("cluster created %d times, want 1", ecsClient.createClusters)
	}
	if ecsClient.createServices != 1 {
		t.Errorf("service created %d times, want 1", ecsClient.createServices)
	}
	if logsClient.createCalls != 2 {
		t.Errorf("log group create attempted %d times, want 2 (second is a satisfied conflict)", logsClient.createCalls)
	}
}

func TestInstallTaskDefinitionShape(t *testing.T) {
	tgt, ecsClient, _ := newTestTarget(t)

	result := tgt.Install(context.Background(), target.InstallOptions{Port: 19000, ContainerEnv: map[string]string{"A": "1"}})
	if !result.Success {
		t.Fatalf("install failed: %s", result.Message)
	}

	def := ecsClient.registered[0]
	container := def.ContainerDefinitions[0]
	if aws.ToInt32(container.PortMappings[0].ContainerPort) != 19000 {
		t.Errorf("container port = %d", aws.ToInt32(container.PortMappings[0].ContainerPort))
	}
	if container.LogConfiguration.Options["awslogs-group"] != "/clawster/support-bot" {
		t.Errorf("log group = %s", container.LogConfiguration.Options["awslogs-group"])
	}
	if container.LogConfiguration.Options["awslogs-region"] != "us-east-1" {
		t.Errorf("log region = %s", container.LogConfiguration.Options["awslogs-region"])
	}
}

func TestConfigureRollsNewRevision(t *testing.T) {
	tgt, ecsClient, _ := newTestTarget(t)
	ctx := context.Background()
	tgt.Install(ctx, target.InstallOptions{Port: 19000})

	result := tgt.Configure(ctx, target.ConfigPayload{
		GatewayPort: 19000,
		Config:      map[string]any{"gateway": map[string]any{"port": 1}},
	})
	if !result.Success {
		t.Fatalf("configure failed: %s", result.Message)
	}
	if result.RequiresRestart {
		t.Error("service update already rolls the deployment; no restart needed")
	}
	if len(ecsClient.registered) != 2 {
		t.Fatalf("expected a second task definition revision, got %d", len(ecsClient.registered))
	}

	last := ecsClient.updates[len(ecsClient.updates)-1]
	if aws.ToString(last.TaskDefinition) == "" {
		t.Error("service should be rolled onto the new revision")
	}
}

func TestStartStopDesiredCount(t *testing.T) {
	tgt, _, _ := newTestTarget(t)
	ctx := context.Background()
	tgt.Install(ctx, target.InstallOptions{Port: 19000})

	if err := tgt.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if got := tgt.GetStatus(ctx); got.State != target.StateStopped {
		t.Errorf("state after stop = %s", got.State)
	}

	if err := tgt.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if got := tgt.GetStatus(ctx); got.State != target.StateRunning {
		t.Errorf("state after start = %s", got.State)
	}
}

func TestRestartForcesNewDeployment(t *testing.T) {
	tgt, ecsClient, _ := newTestTarget(t)
	ctx := context.Background()
	tgt.Install(ctx, target.InstallOptions{Port: 19000})

	if err := tgt.Restart(ctx); err != nil {
		t.Fatalf("Restart: %v", err)
	}
	var forced bool
	for _, update := range ecsClient.updates {
		if update.ForceNewDeployment {
			forced = true
		}
	}
	if !forced {
		t.Error("restart should force a new deployment")
	}
}

func TestGetStatusNotInstalled(t *testing.T) {
	tgt, _, _ := newTestTarget(t)

	status := tgt.GetStatus(context.Background())
	if status.State != target.StateNotInstalled {
		t.Errorf("state = %s, want not-installed", status.State)
	}
}

func TestGetEndpointResolvesContainerInstanceIP(t *testing.T) {
	tgt, _, _ := newTestTarget(t)
	ctx := context.Background()
	tgt.Install(ctx, target.InstallOptions{Port: 19000})

	ep, err := tgt.GetEndpoint(ctx)
	if err != nil {
		t.Fatalf("GetEndpoint: %v", err)
	}
	if ep.URL() != "ws://10.0.1.9:19000" {
		t.Errorf("endpoint = %s", ep.URL())
	}
}

func TestGetLogsOrderedOldestFirst(t *testing.T) {
	tgt, _, logsClient := newTestTarget(t)
	logsClient.events = []string{"first", "second", "third"}

	lines := tgt.GetLogs(context.Background(), target.LogOptions{TailLines: 10})
	if len(lines) != 3 || lines[0] != "first" || lines[2] != "third" {
		t.Errorf("lines = %v", lines)
	}
}

func TestDestroyRemovesEverything(t *testing.T) {
	tgt, ecsClient, logsClient := newTestTarget(t)
	ctx := context.Background()
	tgt.Install(ctx, target.InstallOptions{Port: 19000})

	if err := tgt.Destroy(ctx); err != nil {
		t.Fatalf("Destroy: %v", err)
	}
	if !ecsClient.deletedService || !ecsClient.deletedCluster {
		t.Error("service and cluster should be deleted")
	}
	if len(logsClient.deletedGroups) != 1 {
		t.Error("log group should be deleted")
	}
}

func TestDestroyOnEmptyAccountDoesNotFail(t *testing.T) {
	tgt, _, _ := newTestTarget(t)

	if err := tgt.Destroy(context.Background()); err != nil {
		t.Fatalf("Destroy on missing resources should not fail: %v", err)
	}
}
